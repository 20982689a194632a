// Package ledger is the append-only system of record for classified
// activities. It sits on a store.Store and adds the append-time guarantees:
// reproducible entries, one entry per fingerprint, and corrections modeled
// as superseding entries.
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ecoledger/internal/calc"
	"github.com/sells-group/ecoledger/internal/model"
	"github.com/sells-group/ecoledger/internal/store"
)

// Ledger serializes appends within the process. The store's unique
// fingerprint constraint covers appends from other processes.
type Ledger struct {
	store store.Store
	mu    sync.Mutex
	now   func() time.Time
}

// New creates a Ledger over st.
func New(st store.Store) *Ledger {
	return &Ledger{store: st, now: time.Now}
}

// Append stores one entry and returns its id. An entry whose fingerprint is
// already recorded is rejected with model.ErrDuplicate.
func (l *Ledger) Append(ctx context.Context, a model.Activity) (int64, error) {
	res, err := l.AppendBatch(ctx, []model.Activity{a})
	if err != nil {
		return 0, err
	}
	if len(res.Inserted) == 0 {
		return 0, eris.Wrapf(model.ErrDuplicate, "ledger: append %s", a.Fingerprint)
	}
	return res.Inserted[0].ID, nil
}

// AppendBatch stores entries as one unit of work. Duplicates are skipped and
// reported by input index; any other failure commits nothing.
func (l *Ledger) AppendBatch(ctx context.Context, entries []model.Activity) (*store.AppendResult, error) {
	if len(entries) == 0 {
		return &store.AppendResult{}, nil
	}
	batch, err := l.prepare(entries)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.appendLocked(ctx, batch)
}

// Supersede appends corrected as a new entry replacing id. The original
// entry is kept unchanged; reads that exclude superseded entries stop
// returning it.
func (l *Ledger) Supersede(ctx context.Context, id int64, corrected model.Activity) (*model.Activity, error) {
	if _, err := l.store.GetActivity(ctx, id); err != nil {
		return nil, eris.Wrapf(err, "ledger: supersede %d", id)
	}
	corrected.Supersedes = &id
	batch, err := l.prepare([]model.Activity{corrected})
	if err != nil {
		return nil, eris.Wrapf(err, "ledger: supersede %d", id)
	}

	// The check and the insert share one critical section so two
	// corrections of the same entry cannot both pass.
	l.mu.Lock()
	defer l.mu.Unlock()

	superseded, err := l.store.IsSuperseded(ctx, id)
	if err != nil {
		return nil, eris.Wrapf(err, "ledger: supersede %d", id)
	}
	if superseded {
		return nil, eris.Wrapf(model.ErrSuperseded, "ledger: supersede %d", id)
	}

	res, err := l.appendLocked(ctx, batch)
	if err != nil {
		return nil, eris.Wrapf(err, "ledger: supersede %d", id)
	}
	if len(res.Inserted) == 0 {
		return nil, eris.Wrapf(model.ErrDuplicate, "ledger: supersede %d", id)
	}
	a := res.Inserted[0]
	return &a, nil
}

// prepare validates entries and stamps them for insertion.
func (l *Ledger) prepare(entries []model.Activity) ([]model.Activity, error) {
	stamp := l.now().UTC()
	batch := make([]model.Activity, len(entries))
	for i, a := range entries {
		if a.Fingerprint == "" {
			return nil, eris.Errorf("ledger: entry %d has no fingerprint", i)
		}
		if !a.Confidence.Valid() {
			return nil, eris.Errorf("ledger: entry %d has invalid confidence %q", i, a.Confidence)
		}
		if err := calc.Verify(a); err != nil {
			return nil, eris.Wrapf(err, "ledger: entry %d", i)
		}
		a.ID = 0
		a.CreatedAt = stamp
		batch[i] = a
	}
	return batch, nil
}

// appendLocked requires l.mu.
func (l *Ledger) appendLocked(ctx context.Context, batch []model.Activity) (*store.AppendResult, error) {
	res, err := l.store.AppendActivities(ctx, batch)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: append batch")
	}
	zap.L().Debug("ledger: appended batch",
		zap.Int("inserted", len(res.Inserted)),
		zap.Int("duplicates", len(res.Duplicates)),
	)
	return res, nil
}

// Get returns the entry with id, or model.ErrNotFound.
func (l *Ledger) Get(ctx context.Context, id int64) (*model.Activity, error) {
	a, err := l.store.GetActivity(ctx, id)
	if err != nil {
		return nil, eris.Wrapf(err, "ledger: get %d", id)
	}
	return a, nil
}

// List returns entries matching filter, ordered by date ascending unless
// filter.Desc is set.
func (l *Ledger) List(ctx context.Context, filter store.ActivityFilter) ([]model.Activity, error) {
	out, err := l.store.ListActivities(ctx, filter)
	return out, eris.Wrap(err, "ledger: list")
}

// Snapshot returns every current entry in the window. Superseded entries
// are excluded. The entries and the supersede check are read by a single
// statement, so an append committed mid-read is either wholly visible or
// not visible at all.
func (l *Ledger) Snapshot(ctx context.Context, from, to *time.Time) ([]model.Activity, error) {
	out, err := l.store.ListActivities(ctx, store.ActivityFilter{From: from, To: to})
	if err != nil {
		return nil, eris.Wrap(err, "ledger: snapshot")
	}
	return out, nil
}

// Count returns the number of stored entries, superseded ones included.
func (l *Ledger) Count(ctx context.Context) (int, error) {
	n, err := l.store.CountActivities(ctx)
	return n, eris.Wrap(err, "ledger: count")
}

// ExistingFingerprints satisfies fingerprint.Lookup.
func (l *Ledger) ExistingFingerprints(ctx context.Context, fps []model.Fingerprint) (map[model.Fingerprint]bool, error) {
	found, err := l.store.ExistingFingerprints(ctx, fps)
	return found, eris.Wrap(err, "ledger: existing fingerprints")
}

// IsSuperseded reports whether a correction replaced id.
func (l *Ledger) IsSuperseded(ctx context.Context, id int64) (bool, error) {
	ok, err := l.store.IsSuperseded(ctx, id)
	return ok, eris.Wrapf(err, "ledger: is superseded %d", id)
}
