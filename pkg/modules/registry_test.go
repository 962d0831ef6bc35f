package modules_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/integra/pkg/models"
	"github.com/dukex/integra/pkg/modules"
	"github.com/dukex/integra/pkg/protocol"
)

func newRegistry() *modules.Registry {
	return modules.NewRegistry(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})))
}

func upper(value string) modules.ProcessorFunc {
	return func(_ context.Context, tx *models.Transaction) error {
		tx.Message = value

		return nil
	}
}

func TestRegistry_RunProcessor(t *testing.T) {
	t.Parallel()

	r := newRegistry()
	require.NoError(t, r.RegisterProcessor("m", "p", upper("v1")))
	assert.ErrorIs(t, r.RegisterProcessor("m", "p", upper("v2")), modules.ErrProcessorExists)

	tx := &models.Transaction{}
	require.NoError(t, r.RunProcessor(context.Background(), "m", "p", tx))
	assert.Equal(t, "v1", tx.Message)

	require.NoError(t, r.SwapProcessor("m", "p", upper("v2")))
	require.NoError(t, r.RunProcessor(context.Background(), "m", "p", tx))
	assert.Equal(t, "v2", tx.Message)

	assert.ErrorIs(t, r.SwapProcessor("m", "missing", upper("v3")), modules.ErrProcessorNotFound)

	r.Unload("m")
	err := r.RunProcessor(context.Background(), "m", "p", tx)
	assert.ErrorIs(t, err, protocol.ErrModuleNotFound)
}

type staticModule struct {
	id         string
	processors map[string]modules.Processor
}

func (m staticModule) ID() string                               { return m.id }
func (m staticModule) Processors() map[string]modules.Processor { return m.processors }

func TestRegistry_Load(t *testing.T) {
	t.Parallel()

	r := newRegistry()

	assert.ErrorIs(t, r.Load(staticModule{}), modules.ErrInvalidModule)

	require.NoError(t, r.RegisterProcessor("m", "b", upper("b")))

	err := r.Load(staticModule{id: "m", processors: map[string]modules.Processor{"a": upper("a"), "b": upper("b")}})
	require.ErrorIs(t, err, modules.ErrProcessorExists)

	// nothing of the clashing module was registered
	err = r.RunProcessor(context.Background(), "m", "a", &models.Transaction{})
	assert.ErrorIs(t, err, protocol.ErrModuleNotFound)

	require.NoError(t, r.Load(modules.Core(slog.Default())))
	assert.Equal(t, []string{modules.CoreModuleID, "m"}, r.Modules())
}

func TestRegistry_RunScript(t *testing.T) {
	t.Parallel()

	r := newRegistry()

	require.NoError(t, r.RegisterScript("sync", modules.ScriptFunc(
		func(_ context.Context, tx *models.Transaction, _ modules.CompleteFunc) (*models.Transaction, error) {
			out := *tx
			out.Message = "sync"

			return &out, nil
		})))

	require.NoError(t, r.RegisterScript("async", modules.ScriptFunc(
		func(_ context.Context, tx *models.Transaction, complete modules.CompleteFunc) (*models.Transaction, error) {
			go func() {
				time.Sleep(10 * time.Millisecond)

				out := *tx
				out.Message = "async"
				complete(&out, nil)
				complete(nil, errors.New("ignored"))
			}()

			return nil, nil
		})))

	require.NoError(t, r.RegisterScript("never", modules.ScriptFunc(
		func(context.Context, *models.Transaction, modules.CompleteFunc) (*models.Transaction, error) {
			return nil, nil
		})))

	assert.ErrorIs(t, r.RegisterScript("sync", nil), modules.ErrScriptExists)

	tx := &models.Transaction{Message: "in"}

	got, err := r.RunScript(context.Background(), "sync", tx, false)
	require.NoError(t, err)
	assert.Equal(t, "sync", got.Message)

	got, err = r.RunScript(context.Background(), "async", tx, true)
	require.NoError(t, err)
	assert.Equal(t, "async", got.Message)
	assert.Equal(t, "in", tx.Message)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = r.RunScript(ctx, "never", tx, true)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	bounded := modules.NewRegistry(slog.Default(), modules.WithScriptTimeout(20*time.Millisecond))
	require.NoError(t, bounded.RegisterScript("never", modules.ScriptFunc(
		func(context.Context, *models.Transaction, modules.CompleteFunc) (*models.Transaction, error) {
			return nil, nil
		})))

	_, err = bounded.RunScript(context.WithoutCancel(context.Background()), "never", tx, true)
	assert.ErrorIs(t, err, modules.ErrScriptTimeout)

	_, err = r.RunScript(context.Background(), "missing", tx, false)
	assert.ErrorIs(t, err, protocol.ErrModuleNotFound)

	r.RemoveScript("sync")
	_, err = r.RunScript(context.Background(), "sync", tx, false)
	assert.ErrorIs(t, err, protocol.ErrModuleNotFound)
}

func TestCore_SetProperty(t *testing.T) {
	t.Parallel()

	r := newRegistry()
	require.NoError(t, r.Load(modules.Core(slog.Default())))

	tx := &models.Transaction{
		IntegrationConfig: map[string]any{"properties": map[string]any{"region": "eu"}},
	}

	require.NoError(t, r.RunProcessor(context.Background(), modules.CoreModuleID, "set_property", tx))
	region, ok := tx.Property("region")
	assert.True(t, ok)
	assert.Equal(t, "eu", region)

	require.NoError(t, r.RunProcessor(context.Background(), modules.CoreModuleID, "log", tx))
}
