package persistence_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dukex/integra/pkg/persistence"
)

func TestStandardizedErrors(t *testing.T) {
	t.Parallel()

	t.Run("error checking functions work correctly", func(t *testing.T) {
		err := persistence.NewTransactionError("GetByID", 42, persistence.ErrTransactionNotFound)

		assert.True(t, persistence.IsTransactionNotFound(err))
		assert.True(t, errors.Is(err, persistence.ErrTransactionNotFound))
		assert.False(t, persistence.IsTransactionNotFound(errors.New("other")))
	})

	t.Run("transaction error contains context", func(t *testing.T) {
		err := persistence.NewTransactionError("UpdateTransaction", 42, persistence.ErrTransactionNotFound)

		assert.Contains(t, err.Error(), "UpdateTransaction")
		assert.Contains(t, err.Error(), "42")
		assert.Contains(t, err.Error(), "transaction not found")
	})
}
