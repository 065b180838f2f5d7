// Package ablation implements the reversible ablate/restore state machine.
//
// A collection moves Active -> Ablated when its documents are backed up in
// memory and removed, and back to Active once the backup has been
// re-inserted. Every failure is returned as a fatal typed error; the machine
// never leaves a collection half-ablated and then carries on.
package ablation

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/ablation/datastore"
	"github.com/teranos/ablation/errors"
	"github.com/teranos/ablation/logger"
)

// DefaultBatchSize bounds the number of documents per restore insert.
const DefaultBatchSize = 1000

// Status of one collection.
type Status int

const (
	Active Status = iota
	Ablated
)

func (s Status) String() string {
	switch s {
	case Active:
		return "active"
	case Ablated:
		return "ablated"
	default:
		return "unknown"
	}
}

// State tracks one ablated collection and the documents removed from it.
type State struct {
	Status    Status
	AblatedAt time.Time

	backup    []datastore.Document
	hasBackup bool
}

// Machine owns the ablation state of every collection for one harness run.
type Machine struct {
	docs    datastore.Datastore
	logger  *zap.SugaredLogger
	limiter *rate.Limiter

	batchSize int

	mu     sync.Mutex
	states map[string]*State
}

// Option configures a Machine.
type Option func(*Machine)

// WithBatchSize sets the restore batch size. Values below 1 keep the default.
func WithBatchSize(n int) Option {
	return func(m *Machine) {
		if n > 0 {
			m.batchSize = n
		}
	}
}

// WithBatchRate limits restore inserts to perSecond batches. Zero is unpaced.
func WithBatchRate(perSecond float64) Option {
	return func(m *Machine) {
		if perSecond > 0 {
			m.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// NewMachine creates a state machine with every collection Active.
func NewMachine(docs datastore.Datastore, log *zap.SugaredLogger, opts ...Option) *Machine {
	m := &Machine{
		docs:      docs,
		logger:    logger.OrNop(log),
		limiter:   rate.NewLimiter(rate.Inf, 1),
		batchSize: DefaultBatchSize,
		states:    make(map[string]*State),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Ablate backs up and empties collection. Ablating an Ablated collection is
// a no-op.
func (m *Machine) Ablate(ctx context.Context, collection string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st, ok := m.states[collection]; ok && st.Status == Ablated {
		m.logger.Infow("Collection already ablated",
			logger.FieldCollection, collection,
			logger.FieldCount, len(st.backup),
		)
		return nil
	}

	exists, err := m.docs.HasCollection(ctx, collection)
	if err != nil {
		return errors.Wrapf(err, "ablate %s", collection)
	}
	if !exists {
		return errors.Integrityf("cannot ablate %s: collection does not exist", collection)
	}

	backup, err := m.docs.GetAllDocuments(ctx, collection)
	if err != nil {
		return errors.Wrapf(err, "back up %s", collection)
	}

	// The backup is retained before the collection is touched so a failed
	// removal can still be restored.
	m.states[collection] = &State{
		Status:    Ablated,
		AblatedAt: time.Now(),
		backup:    backup,
		hasBackup: true,
	}

	if err := m.docs.RemoveAllDocuments(ctx, collection); err != nil {
		return errors.Wrapf(err, "empty %s", collection)
	}

	m.logger.Infow("Ablated collection",
		logger.FieldCollection, collection,
		logger.FieldCount, len(backup),
	)
	return nil
}

// Restore re-inserts the backup of an Ablated collection and returns it to
// Active. Restoring an Active collection is a no-op.
func (m *Machine) Restore(ctx context.Context, collection string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.restoreLocked(ctx, collection)
}

func (m *Machine) restoreLocked(ctx context.Context, collection string) error {
	st, ok := m.states[collection]
	if !ok || st.Status != Ablated {
		m.logger.Debugw("Collection not ablated, nothing to restore", logger.FieldCollection, collection)
		return nil
	}
	if !st.hasBackup {
		return errors.Integrityf("cannot restore %s: no backup was taken", collection)
	}

	exists, err := m.docs.HasCollection(ctx, collection)
	if err != nil {
		return errors.Wrapf(err, "restore %s", collection)
	}
	if !exists {
		return errors.WithDetailf(
			errors.Integrityf("cannot restore %s: collection no longer exists", collection),
			"%d backed-up documents are still held in memory", len(st.backup))
	}

	// Anything written during the ablation window is discarded.
	if err := m.docs.RemoveAllDocuments(ctx, collection); err != nil {
		return errors.Wrapf(err, "clear %s before restore", collection)
	}

	start := time.Now()
	batches := 0
	for i := 0; i < len(st.backup); i += m.batchSize {
		end := i + m.batchSize
		if end > len(st.backup) {
			end = len(st.backup)
		}

		if err := m.limiter.Wait(ctx); err != nil {
			return errors.Wrapf(err, "restore %s interrupted after %d documents", collection, i)
		}

		batch := make([]datastore.Document, 0, end-i)
		for _, doc := range st.backup[i:end] {
			batch = append(batch, doc.StripIdentity())
		}
		if err := m.docs.BulkInsert(ctx, collection, batch); err != nil {
			return errors.Wrapf(err, "restore %s batch at offset %d", collection, i)
		}
		batches++
	}

	delete(m.states, collection)

	m.logger.Infow("Restored collection",
		logger.FieldCollection, collection,
		logger.FieldCount, len(st.backup),
		logger.FieldBatchSize, m.batchSize,
		"batches", batches,
		logger.FieldDurationMS, time.Since(start).Milliseconds(),
	)
	return nil
}

// Cleanup restores every Ablated collection in name order. Errors from
// individual restores are joined; a failed restore keeps its backup.
func (m *Machine) Cleanup(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, collection := range m.ablatedLocked() {
		if err := m.restoreLocked(ctx, collection); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// IsAblated reports whether collection is currently Ablated.
func (m *Machine) IsAblated(collection string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[collection]
	return ok && st.Status == Ablated
}

// Ablated returns the sorted names of every Ablated collection.
func (m *Machine) Ablated() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ablatedLocked()
}

func (m *Machine) ablatedLocked() []string {
	names := make([]string, 0, len(m.states))
	for name, st := range m.states {
		if st.Status == Ablated {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// BackupSize returns the number of documents held for an Ablated collection.
func (m *Machine) BackupSize(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.states[collection]; ok {
		return len(st.backup)
	}
	return 0
}
