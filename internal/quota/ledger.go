package quota

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aidqr/aidqr/internal/metrics"
)

// Gateway loads and saves the whole record table. Implementations hold no
// business logic.
type Gateway interface {
	Load(ctx context.Context) (Table, error)
	Save(ctx context.Context, table Table) error
}

// Ledger is the in-memory owner of every user record. All record reads and
// writes go through it so that persisted state follows memory state.
type Ledger struct {
	gw Gateway

	mu      sync.Mutex
	records map[string]*Record
	// held is set by a failed Load and cleared by the first new record.
	// While set, Persist refuses to overwrite the stored table.
	held bool

	// saveMu orders saves; each save snapshots the table after acquiring it,
	// so the last write always carries every mutation made before it started.
	saveMu sync.Mutex
}

// NewLedger creates an empty ledger backed by gw.
func NewLedger(gw Gateway) *Ledger {
	return &Ledger{
		gw:      gw,
		records: make(map[string]*Record),
	}
}

// Load replaces the in-memory table with the persisted one. On failure the
// ledger starts empty, the error is logged and returned as a *PersistenceError,
// and saves are held until a record is created.
func (l *Ledger) Load(ctx context.Context) error {
	table, err := l.gw.Load(ctx)
	if err != nil {
		metrics.PersistenceFailuresTotal.WithLabelValues("load").Inc()
		slog.Error("loading ledger, starting empty", "error", err)
		l.replace(nil, true)
		return &PersistenceError{Op: "load", Err: err}
	}

	l.replace(table, false)
	slog.Info("ledger loaded", "records", len(table))
	return nil
}

func (l *Ledger) replace(table Table, held bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.held = held
	l.records = make(map[string]*Record, len(table))
	for id, rec := range table {
		r := rec.clone()
		if r.ID == "" {
			r.ID = id
		}
		l.records[id] = &r
	}
	metrics.LedgerRecords.Set(float64(len(l.records)))
}

// GetOrCreate returns the record for id, creating it with the limits of
// category when absent. An existing record is returned unchanged whatever
// category is passed. created reports whether a new record was added.
func (l *Ledger) GetOrCreate(id, category string, now time.Time) (rec Record, created bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.records[id]
	if !ok {
		r = newRecord(id, category, now)
		l.records[id] = r
		created = true
		l.held = false
		metrics.LedgerRecords.Set(float64(len(l.records)))
	}
	return r.clone(), created
}

// Lookup returns a copy of the record for id.
func (l *Ledger) Lookup(id string) (Record, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.records[id]
	if !ok {
		return Record{}, false
	}
	return r.clone(), true
}

// Update runs fn on the record for id while holding the ledger lock, so the
// read-check-mutate sequence inside fn is atomic with respect to every other
// ledger operation. The returned record reflects fn's changes, even when fn
// returns an error after mutating.
func (l *Ledger) Update(id string, fn func(r *Record) error) (Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.records[id]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	err := fn(r)
	return r.clone(), err
}

// ResetDaily zeroes the usage of every record whose last reset falls on an
// earlier calendar day than now. Outstanding keys are left alone. It returns
// the number of records reset.
func (l *Ledger) ResetDaily(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, r := range l.records {
		if resetIfStale(r, now) {
			n++
		}
	}
	return n
}

// Snapshot returns a deep copy of the whole table.
func (l *Ledger) Snapshot() Table {
	table, _ := l.snapshotForSave()
	return table
}

// Len returns the number of records.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

func (l *Ledger) snapshotForSave() (Table, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	table := make(Table, len(l.records))
	for id, r := range l.records {
		table[id] = r.clone()
	}
	return table, l.held
}

// Persist saves the current table through the gateway. Failures are logged
// and counted; the in-memory table stays authoritative either way. After a
// failed Load nothing is written until a record has been created, so a
// stored table that could not be read is never replaced by an empty one.
func (l *Ledger) Persist(ctx context.Context) error {
	l.saveMu.Lock()
	defer l.saveMu.Unlock()

	table, held := l.snapshotForSave()
	if held {
		slog.Warn("ledger save skipped, stored table was not loaded")
		return &PersistenceError{Op: "save", Err: ErrSaveHeld}
	}
	if err := l.gw.Save(ctx, table); err != nil {
		metrics.PersistenceFailuresTotal.WithLabelValues("save").Inc()
		slog.Error("saving ledger", "error", err, "records", len(table))
		return &PersistenceError{Op: "save", Err: err}
	}
	return nil
}
