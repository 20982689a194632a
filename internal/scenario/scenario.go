// Package scenario simulates changes to a stored activity against the
// current factor table without touching the ledger.
package scenario

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/ecoledger/internal/calc"
	"github.com/sells-group/ecoledger/internal/model"
	"github.com/sells-group/ecoledger/internal/normalize"
)

// ErrInvalid marks a request that cannot be simulated as given.
var ErrInvalid = errors.New("invalid scenario")

// Getter loads a stored activity.
type Getter interface {
	Get(ctx context.Context, id int64) (*model.Activity, error)
}

// Factors is the slice of the factor table a simulation needs.
type Factors interface {
	Factor(key string) (model.FactorEntry, bool)
	FactorForCategory(category, unit string) (model.FactorEntry, bool)
	Compatible(from, to string) bool
	Convert(from, to string) (decimal.Decimal, error)
}

// Simulator runs what-if calculations.
type Simulator struct {
	ledger  Getter
	factors Factors
	engine  *calc.Engine
}

// New creates a Simulator.
func New(ledger Getter, factors Factors) *Simulator {
	return &Simulator{ledger: ledger, factors: factors, engine: calc.NewEngine(factors)}
}

// Simulate recomputes the activity with the requested quantity and type.
// Omitted fields keep the stored values. The stored entry is never changed.
func (s *Simulator) Simulate(ctx context.Context, req model.ScenarioRequest) (*model.ScenarioResult, error) {
	a, err := s.ledger.Get(ctx, req.ActivityID)
	if err != nil {
		return nil, eris.Wrapf(err, "scenario: activity %d", req.ActivityID)
	}

	qty := a.Quantity
	if req.NewQuantity != nil {
		if reason := normalize.CheckQuantity(*req.NewQuantity); reason != "" {
			return nil, eris.Wrapf(ErrInvalid, "scenario: %s", reason)
		}
		qty = *req.NewQuantity
	}

	f, err := s.resolveFactor(a, req.NewType)
	if err != nil {
		return nil, err
	}

	rec := model.RawRecord{Date: a.Date, Description: a.Description, Quantity: qty, Unit: a.Unit}
	res, err := s.engine.Compute(rec, f)
	if err != nil {
		return nil, eris.Wrapf(ErrInvalid, "scenario: %v", err)
	}
	return Compare(a.CO2e, res.CO2e), nil
}

// resolveFactor picks the factor for a simulation. A new type may name a
// factor key or an activity category; without one, the activity's own
// factor is looked up in the current table, falling back to the factor it
// was stored with.
func (s *Simulator) resolveFactor(a *model.Activity, newType *string) (model.FactorEntry, error) {
	if newType != nil && *newType != "" {
		if f, ok := s.factors.Factor(*newType); ok && s.factors.Compatible(a.Unit, f.Unit) {
			return f, nil
		}
		if f, ok := s.factors.FactorForCategory(*newType, a.Unit); ok {
			return f, nil
		}
		return model.FactorEntry{}, eris.Wrapf(ErrInvalid,
			"scenario: no %q factor accepts unit %s", *newType, a.Unit)
	}

	if f, ok := s.factors.Factor(a.Details.FactorKey); ok && s.factors.Compatible(a.Unit, f.Unit) {
		return f, nil
	}
	unit := a.Details.UnitApplied
	if unit == "" {
		unit = a.Unit
	}
	return model.FactorEntry{
		Key:      a.Details.FactorKey,
		Category: a.ActivityType,
		Value:    a.Details.EmissionFactor,
		Unit:     unit,
		Source:   a.Details.FactorSource,
	}, nil
}

// Compare builds the result for an original and simulated CO2e. The
// reduction percentage is zero when the original is zero.
func Compare(original, simulated decimal.Decimal) *model.ScenarioResult {
	diff := original.Sub(simulated)
	pct := decimal.Zero
	if original.IsPositive() {
		pct = diff.Div(original).Mul(decimal.NewFromInt(100))
	}
	return &model.ScenarioResult{
		OriginalCO2e:        original,
		SimulatedCO2e:       simulated,
		Difference:          diff,
		ReductionPercentage: pct,
	}
}
