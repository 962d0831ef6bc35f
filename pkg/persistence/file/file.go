// Package file provides a file-based transaction log for development and single-node engines.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/dukex/integra/pkg/models"
	"github.com/dukex/integra/pkg/persistence"
)

const (
	transactionsDir = "transactions"
	stepsDir        = "steps"
)

// Persistence implements the persistence.Persistence interface using the file system.
// Transactions live in transactions/<id>.json and steps in steps/<transaction id>/<step row id>.json.
type Persistence struct {
	root string
	mu   sync.Mutex
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	return &Persistence{root: strings.Replace(root, "file://", "", 1)}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) InsertTransaction(_ context.Context, record *models.TransactionRecord) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	filePath := fp.transactionPath(record.ID)
	if _, err := os.Stat(filePath); err == nil {
		return persistence.NewTransactionError("InsertTransaction", record.ID, persistence.ErrTransactionAlreadyExists)
	}

	return fp.write(path.Join(fp.root, transactionsDir), filePath, record)
}

func (fp *Persistence) UpdateTransaction(_ context.Context, record *models.TransactionRecord) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	filePath := fp.transactionPath(record.ID)
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return persistence.NewTransactionError("UpdateTransaction", record.ID, persistence.ErrTransactionNotFound)
	}

	return fp.write(path.Join(fp.root, transactionsDir), filePath, record)
}

func (fp *Persistence) InsertStep(_ context.Context, step *models.StepRecord, info *models.StepInfoRecord) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	dir := path.Join(fp.root, stepsDir, strconv.FormatUint(step.TransactionID, 10))

	return fp.write(dir, path.Join(dir, strconv.FormatUint(step.ID, 10)+".json"), &models.StepLogEntry{Step: step, Info: info})
}

func (fp *Persistence) TransactionByID(_ context.Context, id uint64) (*models.TransactionRecord, error) {
	body, err := os.ReadFile(fp.transactionPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewTransactionError("TransactionByID", id, persistence.ErrTransactionNotFound)
		}

		return nil, fmt.Errorf("failed to fetch transaction %d: %w", id, err)
	}

	var record models.TransactionRecord

	err = json.Unmarshal(body, &record)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal transaction %d: %w", id, err)
	}

	return &record, nil
}

// Transactions returns the newest transactions of an integration, all integrations when
// integrationID is empty.
func (fp *Persistence) Transactions(ctx context.Context, integrationID string, limit int) ([]*models.TransactionRecord, error) {
	ids, err := fp.ids(path.Join(fp.root, transactionsDir))
	if err != nil {
		return nil, err
	}

	records := make([]*models.TransactionRecord, 0, len(ids))

	for _, id := range ids {
		record, err := fp.TransactionByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if integrationID != "" && record.IntegrationID != integrationID {
			continue
		}

		records = append(records, record)
	}

	// IDs grow with time, newest first.
	slices.SortFunc(records, func(a, b *models.TransactionRecord) int {
		switch {
		case a.ID > b.ID:
			return -1
		case a.ID < b.ID:
			return 1
		default:
			return 0
		}
	})

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	return records, nil
}

// StepsByTransaction returns step rows in execution order.
func (fp *Persistence) StepsByTransaction(_ context.Context, transactionID uint64) ([]*models.StepLogEntry, error) {
	dir := path.Join(fp.root, stepsDir, strconv.FormatUint(transactionID, 10))

	ids, err := fp.ids(dir)
	if err != nil {
		return nil, err
	}

	slices.Sort(ids)

	entries := make([]*models.StepLogEntry, 0, len(ids))

	for _, id := range ids {
		body, err := os.ReadFile(path.Join(dir, strconv.FormatUint(id, 10)+".json"))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch step %d: %w", id, err)
		}

		var entry models.StepLogEntry
		if err := json.Unmarshal(body, &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal step %d: %w", id, err)
		}

		entries = append(entries, &entry)
	}

	return entries, nil
}

func (fp *Persistence) transactionPath(id uint64) string {
	return path.Join(fp.root, transactionsDir, strconv.FormatUint(id, 10)+".json")
}

func (fp *Persistence) write(dir, filePath string, value any) error {
	err := os.MkdirAll(dir, 0750)
	if err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filePath, err)
	}

	return os.WriteFile(filePath, data, 0600)
}

// ids lists the numeric names of the json files in dir.
func (fp *Persistence) ids(dir string) ([]uint64, error) {
	jsonFiles, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	ids := make([]uint64, 0, len(jsonFiles))

	for _, name := range jsonFiles {
		id, err := strconv.ParseUint(strings.TrimSuffix(name, ".json"), 10, 64)
		if err != nil {
			continue
		}

		ids = append(ids, id)
	}

	return ids, nil
}

var _ persistence.Persistence = (*Persistence)(nil)
