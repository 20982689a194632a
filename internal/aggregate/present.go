package aggregate

import (
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
)

// Presentation units for CO2e. Stored values are always kilograms.
const (
	UnitKg    = "kg"
	UnitTonne = "t"
)

// ValidUnit reports whether unit is a presentation unit.
func ValidUnit(unit string) bool {
	return unit == UnitKg || unit == UnitTonne
}

// ParseUnit validates a presentation unit. The empty string selects kg.
func ParseUnit(unit string) (string, error) {
	if unit == "" {
		return UnitKg, nil
	}
	if !ValidUnit(unit) {
		return "", eris.Errorf("aggregate: unknown co2e unit %q", unit)
	}
	return unit, nil
}

// Present converts a stored kg value to unit and rounds it to precision
// significant digits. Rounding happens here and nowhere upstream.
func Present(kg decimal.Decimal, unit string, precision int32) decimal.Decimal {
	v := kg
	if unit == UnitTonne {
		v = kg.Shift(-3)
	}
	return RoundSignificant(v, precision)
}

// RoundSignificant rounds d to n significant digits. n <= 0 leaves d as is.
func RoundSignificant(d decimal.Decimal, n int32) decimal.Decimal {
	if n <= 0 || d.IsZero() {
		return d
	}
	abs := d.Abs()
	// mag is the number of digits before the decimal point, or minus the
	// count of leading zeros after it.
	var mag int32
	if abs.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		mag = int32(len(abs.Truncate(0).String()))
	} else {
		tenth := decimal.New(1, -1)
		for v := abs; v.LessThan(tenth); v = v.Shift(1) {
			mag--
		}
	}
	return d.Round(n - mag)
}
