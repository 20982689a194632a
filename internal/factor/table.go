// Package factor holds the emission-factor reference data: the factor table,
// the keyword table used for classification, and the unit alias and
// conversion tables. A Table is built once at startup and shared read-only.
package factor

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/ecoledger/internal/model"
)

// CategoryOther is the category assigned by the generic fallback factors.
const CategoryOther = "Other"

// Unit is a canonical unit token and its scale relative to the base unit of
// its dimension (kWh, L, km, kg, USD, item).
type Unit struct {
	Canonical string          `json:"canonical"`
	Dimension string          `json:"dimension"`
	Scale     decimal.Decimal `json:"scale"`
}

// Keyword maps a description phrase to a factor key.
type Keyword struct {
	Phrase    string `json:"phrase"`
	FactorKey string `json:"factor_key"`
}

// Table is immutable after construction.
type Table struct {
	units        map[string]Unit
	aliases      map[string]string
	factors      map[string]model.FactorEntry
	order        []string
	keywords     []Keyword
	unitDefaults map[string]string
	fallbacks    map[string]string
}

// NormalizeUnitKey lowercases and collapses whitespace so alias lookups are
// insensitive to case and spacing.
func NormalizeUnitKey(raw string) string {
	return strings.ToLower(strings.Join(strings.Fields(raw), " "))
}

// CanonicalUnit resolves a raw unit string through the alias table.
func (t *Table) CanonicalUnit(raw string) (string, bool) {
	c, ok := t.aliases[NormalizeUnitKey(raw)]
	return c, ok
}

// Unit returns the definition of a canonical unit.
func (t *Table) Unit(canonical string) (Unit, bool) {
	u, ok := t.units[canonical]
	return u, ok
}

// Convert returns the multiplier m such that a quantity q in from equals
// q*m in to. Both units must be canonical and share a dimension.
func (t *Table) Convert(from, to string) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	fu, ok := t.units[from]
	if !ok {
		return decimal.Zero, &model.UnitConversionError{From: from, To: to}
	}
	tu, ok := t.units[to]
	if !ok || fu.Dimension != tu.Dimension {
		return decimal.Zero, &model.UnitConversionError{From: from, To: to}
	}
	return fu.Scale.Div(tu.Scale), nil
}

// Compatible reports whether a conversion path exists between two units.
func (t *Table) Compatible(from, to string) bool {
	_, err := t.Convert(from, to)
	return err == nil
}

// Factor looks up a factor entry by key.
func (t *Table) Factor(key string) (model.FactorEntry, bool) {
	f, ok := t.factors[key]
	return f, ok
}

// Factors returns all factor entries in definition order.
func (t *Table) Factors() []model.FactorEntry {
	out := make([]model.FactorEntry, 0, len(t.order))
	for _, k := range t.order {
		out = append(out, t.factors[k])
	}
	return out
}

// Keywords returns the keyword table, longest phrase first.
func (t *Table) Keywords() []Keyword {
	out := make([]Keyword, len(t.keywords))
	copy(out, t.keywords)
	return out
}

// UnitDefault returns the factor inferred from a canonical unit alone.
func (t *Table) UnitDefault(unit string) (model.FactorEntry, bool) {
	key, ok := t.unitDefaults[unit]
	if !ok {
		return model.FactorEntry{}, false
	}
	return t.Factor(key)
}

// Fallback returns the generic factor for the unit's dimension. It never
// fails: a unit with no configured fallback gets a zero factor in its own
// unit so that every record can still be recorded.
func (t *Table) Fallback(unit string) model.FactorEntry {
	if u, ok := t.units[unit]; ok {
		if key, ok := t.fallbacks[u.Dimension]; ok {
			if f, ok := t.factors[key]; ok {
				return f
			}
		}
	}
	return model.FactorEntry{
		Key:             "other_" + strings.ToLower(unit),
		Category:        CategoryOther,
		Value:           decimal.Zero,
		Unit:            unit,
		Source:          "No factor available",
		IndustryAverage: true,
	}
}

// FactorForCategory returns the first factor of a category, in definition
// order, whose unit is reachable from unit.
func (t *Table) FactorForCategory(category, unit string) (model.FactorEntry, bool) {
	for _, k := range t.order {
		f := t.factors[k]
		if !strings.EqualFold(f.Category, category) {
			continue
		}
		if t.Compatible(unit, f.Unit) {
			return f, true
		}
	}
	return model.FactorEntry{}, false
}

// Categories returns the distinct factor categories, sorted.
func (t *Table) Categories() []string {
	seen := make(map[string]bool)
	var out []string
	for _, f := range t.factors {
		if !seen[f.Category] {
			seen[f.Category] = true
			out = append(out, f.Category)
		}
	}
	sort.Strings(out)
	return out
}

// WithAliases returns a copy of t with extra unit aliases. Each value must be
// a canonical unit already known to the table.
func (t *Table) WithAliases(extra map[string]string) (*Table, error) {
	if len(extra) == 0 {
		return t, nil
	}
	cp := *t
	cp.aliases = make(map[string]string, len(t.aliases)+len(extra))
	for k, v := range t.aliases {
		cp.aliases[k] = v
	}
	for alias, canonical := range extra {
		if _, ok := t.units[canonical]; !ok {
			return nil, eris.Errorf("factor: alias %q targets unknown unit %q", alias, canonical)
		}
		cp.aliases[NormalizeUnitKey(alias)] = canonical
	}
	return &cp, nil
}
