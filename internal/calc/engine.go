// Package calc converts a classified quantity into kg CO2e and renders the
// audit trace stored with every ledger entry.
package calc

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sells-group/ecoledger/internal/model"
)

// Formula templates. Placeholders: {quantity} {unit} {conversion}
// {factor} {factor_unit} {co2e} {source} {key}.
const (
	DefaultTemplate    = "{quantity} {unit} × {factor} kgCO2e/{factor_unit} = {co2e} kgCO2e [{source}]"
	ConversionTemplate = "{quantity} {unit} × {conversion} {factor_unit}/{unit} × {factor} kgCO2e/{factor_unit} = {co2e} kgCO2e [{source}]"
)

// Converter yields the multiplier from one canonical unit to another.
type Converter interface {
	Convert(from, to string) (decimal.Decimal, error)
}

// Result is the output of one computation.
type Result struct {
	CO2e       decimal.Decimal
	Conversion decimal.Decimal
	Formula    string
}

// Engine is stateless apart from its converter and safe for concurrent use.
type Engine struct {
	conv Converter
}

// NewEngine creates an Engine.
func NewEngine(conv Converter) *Engine {
	return &Engine{conv: conv}
}

// Compute multiplies quantity by the factor, converting the record unit to
// the factor unit first. It returns a *model.UnitConversionError when the
// units share no dimension. No rounding is applied.
func (e *Engine) Compute(rec model.RawRecord, f model.FactorEntry) (Result, error) {
	conv, err := e.conv.Convert(rec.Unit, f.Unit)
	if err != nil {
		return Result{}, err
	}
	co2e := rec.Quantity.Mul(conv).Mul(f.Value)

	tmpl := f.FormulaTemplate
	if tmpl == "" {
		tmpl = DefaultTemplate
		if rec.Unit != f.Unit {
			tmpl = ConversionTemplate
		}
	}

	return Result{
		CO2e:       co2e,
		Conversion: conv,
		Formula:    Render(tmpl, rec, f, conv, co2e),
	}, nil
}

// Details assembles the trace stored on a ledger entry.
func (e *Engine) Details(rec model.RawRecord, f model.FactorEntry, res Result, method model.Method) model.Details {
	return model.Details{
		EmissionFactor:   f.Value,
		FactorKey:        f.Key,
		FactorSource:     f.Source,
		UnitApplied:      f.Unit,
		ConversionFactor: res.Conversion,
		Formula:          res.Formula,
		CalculationNotes: "Calculated for " + rec.Quantity.String() + " " + rec.Unit,
		Method:           method,
	}
}

// Render fills a formula template.
func Render(tmpl string, rec model.RawRecord, f model.FactorEntry, conv, co2e decimal.Decimal) string {
	return strings.NewReplacer(
		"{quantity}", rec.Quantity.String(),
		"{unit}", rec.Unit,
		"{conversion}", conv.String(),
		"{factor}", f.Value.String(),
		"{factor_unit}", f.Unit,
		"{co2e}", co2e.String(),
		"{source}", f.Source,
		"{key}", f.Key,
	).Replace(tmpl)
}

// Recompute derives CO2e from a stored trace alone.
func Recompute(quantity decimal.Decimal, d model.Details) decimal.Decimal {
	conv := d.ConversionFactor
	if conv.IsZero() {
		conv = decimal.NewFromInt(1)
	}
	return quantity.Mul(conv).Mul(d.EmissionFactor)
}
