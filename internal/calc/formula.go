package calc

import (
	"regexp"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/ecoledger/internal/model"
)

// Terms are the numbers read back out of a rendered default formula.
type Terms struct {
	Quantity   decimal.Decimal
	Conversion decimal.Decimal
	Factor     decimal.Decimal
	CO2e       decimal.Decimal
}

var formulaPattern = regexp.MustCompile(
	`^(\S+) \S+ × (?:(\S+) \S+ × )?(\S+) kgCO2e/\S+ = (\S+) kgCO2e`)

// ParseFormula reads the arithmetic back out of a formula rendered from
// DefaultTemplate or ConversionTemplate.
func ParseFormula(formula string) (Terms, error) {
	m := formulaPattern.FindStringSubmatch(formula)
	if m == nil {
		return Terms{}, eris.Errorf("calc: unrecognized formula %q", formula)
	}
	var t Terms
	var err error
	if t.Quantity, err = decimal.NewFromString(m[1]); err != nil {
		return Terms{}, eris.Wrap(err, "calc: formula quantity")
	}
	t.Conversion = decimal.NewFromInt(1)
	if m[2] != "" {
		if t.Conversion, err = decimal.NewFromString(m[2]); err != nil {
			return Terms{}, eris.Wrap(err, "calc: formula conversion")
		}
	}
	if t.Factor, err = decimal.NewFromString(m[3]); err != nil {
		return Terms{}, eris.Wrap(err, "calc: formula factor")
	}
	if t.CO2e, err = decimal.NewFromString(m[4]); err != nil {
		return Terms{}, eris.Wrap(err, "calc: formula co2e")
	}
	return t, nil
}

// Product is quantity × conversion × factor.
func (t Terms) Product() decimal.Decimal {
	return t.Quantity.Mul(t.Conversion).Mul(t.Factor)
}

// Verify checks that an activity's stored CO2e matches both its details and,
// when the formula uses a default template, the formula text.
func Verify(a model.Activity) error {
	want := Recompute(a.Quantity, a.Details)
	if !want.Equal(a.CO2e) {
		return eris.Errorf("calc: co2e %s does not match recomputed %s", a.CO2e, want)
	}
	terms, err := ParseFormula(a.Details.Formula)
	if err != nil {
		// Custom templates are not machine-readable; the details check above
		// is authoritative.
		return nil
	}
	if !terms.Product().Equal(a.CO2e) || !terms.CO2e.Equal(a.CO2e) {
		return eris.Errorf("calc: formula %q does not reproduce co2e %s", a.Details.Formula, a.CO2e)
	}
	return nil
}
