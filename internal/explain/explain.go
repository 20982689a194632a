// Package explain returns the stored calculation trace of a ledger entry.
package explain

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/ecoledger/internal/calc"
	"github.com/sells-group/ecoledger/internal/model"
)

// Source is the read side of the ledger the explainer needs.
type Source interface {
	Get(ctx context.Context, id int64) (*model.Activity, error)
	IsSuperseded(ctx context.Context, id int64) (bool, error)
}

// Explanation is an entry exactly as stored, plus audit flags. The stored
// details are never regenerated from the current factor table.
type Explanation struct {
	model.Activity
	// Recomputed is quantity × conversion × emission factor from the stored
	// details alone.
	Recomputed decimal.Decimal `json:"recomputed_co2e"`
	Verified   bool            `json:"verified"`
	Superseded bool            `json:"superseded"`
}

// Explainer looks up entries in a Source.
type Explainer struct {
	src Source
}

// New creates an Explainer.
func New(src Source) *Explainer {
	return &Explainer{src: src}
}

// Explain returns the entry with id. Unknown ids yield model.ErrNotFound.
func (e *Explainer) Explain(ctx context.Context, id int64) (*Explanation, error) {
	a, err := e.src.Get(ctx, id)
	if err != nil {
		return nil, eris.Wrapf(err, "explain: %d", id)
	}
	superseded, err := e.src.IsSuperseded(ctx, id)
	if err != nil {
		return nil, eris.Wrapf(err, "explain: %d", id)
	}
	return &Explanation{
		Activity:   *a,
		Recomputed: calc.Recompute(a.Quantity, a.Details),
		Verified:   calc.Verify(*a) == nil,
		Superseded: superseded,
	}, nil
}
