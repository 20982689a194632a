package classify

import (
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/ecoledger/internal/factor"
	"github.com/sells-group/ecoledger/internal/model"
)

// Result is the classification of one record.
type Result struct {
	ActivityType string
	Factor       model.FactorEntry
	Confidence   model.Level
	Method       model.Method
	Match        string
}

// Classifier is what the ingestion pipeline depends on.
type Classifier interface {
	Classify(rec model.RawRecord) Result
}

// Converter checks that a record unit can be expressed in a factor unit.
type Converter interface {
	Convert(from, to string) (decimal.Decimal, error)
}

// Chain runs strategies in order and returns the first proposal whose factor
// unit is reachable from the record unit. It never fails.
type Chain struct {
	strategies []Strategy
	conv       Converter
}

// NewChain creates a Chain over explicit strategies.
func NewChain(conv Converter, strategies ...Strategy) *Chain {
	return &Chain{strategies: strategies, conv: conv}
}

// New returns the standard keyword → unit → fallback chain over tbl.
func New(tbl *factor.Table) *Chain {
	return NewChain(tbl,
		NewKeywordStrategy(tbl),
		NewUnitStrategy(tbl),
		NewFallbackStrategy(tbl),
	)
}

// Classify resolves rec. Proposals whose factor unit cannot be converted
// from rec.Unit are skipped so the chain degrades to a compatible factor.
func (c *Chain) Classify(rec model.RawRecord) Result {
	for _, s := range c.strategies {
		for _, p := range s.Propose(rec) {
			if _, err := c.conv.Convert(rec.Unit, p.Factor.Unit); err != nil {
				var convErr *model.UnitConversionError
				if errors.As(err, &convErr) {
					zap.L().Debug("classify: skipping incompatible factor",
						zap.String("method", string(s.Method())),
						zap.String("factor", p.Factor.Key),
						zap.String("from", convErr.From),
						zap.String("to", convErr.To),
					)
				}
				continue
			}
			return Result{
				ActivityType: p.Factor.Category,
				Factor:       p.Factor,
				Confidence:   p.Confidence,
				Method:       s.Method(),
				Match:        p.Match,
			}
		}
	}

	// No strategy produced a usable factor: record at zero with the lowest
	// confidence rather than dropping the row.
	return Result{
		ActivityType: factor.CategoryOther,
		Factor: model.FactorEntry{
			Key:             "unclassified",
			Category:        factor.CategoryOther,
			Value:           decimal.Zero,
			Unit:            rec.Unit,
			Source:          "No factor available",
			IndustryAverage: true,
		},
		Confidence: model.LevelLow,
		Method:     model.MethodFallback,
	}
}
