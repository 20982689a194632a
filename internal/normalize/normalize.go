// Package normalize turns an uploaded CSV payload into validated raw activity
// records. Row problems are collected per row; only a bad header fails the
// whole payload.
package normalize

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/ecoledger/internal/fetcher"
	"github.com/sells-group/ecoledger/internal/model"
)

// Required CSV columns.
const (
	ColDate        = "date"
	ColDescription = "description"
	ColQuantity    = "quantity"
	ColUnit        = "unit"
)

// RequiredColumns lists the header columns every upload must carry.
var RequiredColumns = []string{ColDate, ColDescription, ColQuantity, ColUnit}

// DefaultDateLayouts are tried in order when parsing the date column.
var DefaultDateLayouts = []string{
	model.DateLayout,
	"2006/01/02",
	"01/02/2006",
	"02.01.2006",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"Jan 2, 2006",
	"2 Jan 2006",
}

// Quantity bounds. Values beyond them cannot be presented as float64 or
// rendered into a formula at a sane size.
const (
	maxQuantityExponent = 30
	maxQuantityScale    = 12
)

var maxQuantity = decimal.New(1, 15)

var thousandsGrouped = regexp.MustCompile(`^[+-]?\d{1,3}(,\d{3})+(\.\d+)?$`)

// UnitResolver maps a raw unit string to its canonical token.
type UnitResolver interface {
	CanonicalUnit(raw string) (string, bool)
}

// Options configures a Normalizer.
type Options struct {
	DateLayouts []string
	Charset     string // empty = sniff BOM / UTF-8 / windows-1252
	Delimiter   rune
}

// Normalizer is safe for concurrent use.
type Normalizer struct {
	units   UnitResolver
	layouts []string
	charset string
	delim   rune
}

// Result is the output of one Normalize call. Records and Errors are both in
// input order.
type Result struct {
	Records []model.RawRecord
	Errors  []model.RowError
	Rows    int
}

// New creates a Normalizer.
func New(units UnitResolver, opts Options) *Normalizer {
	layouts := opts.DateLayouts
	if len(layouts) == 0 {
		layouts = DefaultDateLayouts
	}
	return &Normalizer{units: units, layouts: layouts, charset: opts.Charset, delim: opts.Delimiter}
}

// Normalize parses data. It returns a *model.SchemaError when the header is
// missing, malformed, or lacks required columns.
func (n *Normalizer) Normalize(ctx context.Context, data []byte) (*Result, error) {
	decoded, err := fetcher.Decode(data, n.charset)
	if err != nil {
		return nil, &model.SchemaError{Reason: err.Error()}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	headerCh := make(chan []string, 1)
	rowCh, errCh := fetcher.StreamCSV(ctx, bytes.NewReader(decoded), fetcher.CSVOptions{
		Delimiter:       n.delim,
		HasHeader:       true,
		HeaderCh:        headerCh,
		TrimSpace:       true,
		ContinueOnError: true,
	})

	res := &Result{}
	var cols map[string]int
	for rec := range rowCh {
		if cols == nil {
			// The header is always delivered before the first data row.
			cols, err = columns(<-headerCh)
			if err != nil {
				cancel()
				for range rowCh {
				}
				return nil, err
			}
		}

		if rec.Err == nil && blank(rec.Fields) {
			continue
		}
		res.Rows++
		if rec.Err != nil {
			res.Errors = append(res.Errors, model.RowError{Row: res.Rows, Reason: fmt.Sprintf("malformed CSV at line %d", rec.Line)})
			continue
		}

		raw, rowErr := n.parseRow(rec.Fields, cols)
		if rowErr != "" {
			res.Errors = append(res.Errors, model.RowError{Row: res.Rows, Reason: rowErr})
			zap.L().Debug("normalize: row rejected",
				zap.Int("row", res.Rows),
				zap.Int("line", rec.Line),
				zap.String("reason", rowErr),
			)
			continue
		}
		raw.Row = res.Rows
		res.Records = append(res.Records, raw)
	}

	for err := range errCh {
		if err == nil {
			continue
		}
		if cols == nil {
			return nil, &model.SchemaError{Reason: "malformed header row"}
		}
		return nil, eris.Wrap(err, "normalize: read csv")
	}

	if cols == nil {
		select {
		case h := <-headerCh:
			if _, err := columns(h); err != nil {
				return nil, err
			}
		default:
			return nil, &model.SchemaError{Reason: "empty file: header row required"}
		}
	}

	return res, nil
}

// Record normalizes a single record given as separate fields, as submitted
// by a correction. Rejections are returned as a *model.RowError for row 1.
func (n *Normalizer) Record(date, description, quantity, unit string) (model.RawRecord, error) {
	fields := []string{
		strings.TrimSpace(date),
		strings.TrimSpace(description),
		strings.TrimSpace(quantity),
		strings.TrimSpace(unit),
	}
	cols := map[string]int{ColDate: 0, ColDescription: 1, ColQuantity: 2, ColUnit: 3}
	rec, reason := n.parseRow(fields, cols)
	if reason != "" {
		return model.RawRecord{}, &model.RowError{Row: 1, Reason: reason}
	}
	rec.Row = 1
	return rec, nil
}

func columns(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, dup := cols[key]; !dup {
			cols[key] = i
		}
	}
	var missing []string
	for _, c := range RequiredColumns {
		if _, ok := cols[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, &model.SchemaError{Missing: missing}
	}
	return cols, nil
}

func blank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// parseRow returns a non-empty reason when the row must be rejected.
func (n *Normalizer) parseRow(fields []string, cols map[string]int) (model.RawRecord, string) {
	get := func(col string) string {
		i := cols[col]
		if i >= len(fields) {
			return ""
		}
		return fields[i]
	}

	dateStr := get(ColDate)
	if dateStr == "" {
		return model.RawRecord{}, "missing date"
	}
	date, ok := n.parseDate(dateStr)
	if !ok {
		return model.RawRecord{}, fmt.Sprintf("invalid date %q", dateStr)
	}

	desc := Description(get(ColDescription))
	if desc == "" {
		return model.RawRecord{}, "missing description"
	}

	qty, reason := ParseQuantity(get(ColQuantity))
	if reason != "" {
		return model.RawRecord{}, reason
	}

	rawUnit := get(ColUnit)
	if strings.TrimSpace(rawUnit) == "" {
		return model.RawRecord{}, "missing unit"
	}
	unit, ok := n.units.CanonicalUnit(rawUnit)
	if !ok {
		return model.RawRecord{}, fmt.Sprintf("unrecognized unit %q", rawUnit)
	}

	return model.RawRecord{
		Date:        date,
		Description: desc,
		Quantity:    qty,
		Unit:        unit,
	}, ""
}

func (n *Normalizer) parseDate(s string) (time.Time, bool) {
	for _, layout := range n.layouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// ParseQuantity parses a non-negative decimal. Comma thousands separators are
// accepted only in well-formed groups ("1,234.5"). The returned reason is
// empty on success.
func ParseQuantity(s string) (decimal.Decimal, string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, "missing quantity"
	}
	if thousandsGrouped.MatchString(s) {
		s = strings.ReplaceAll(s, ",", "")
	}
	q, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Sprintf("invalid quantity %q", s)
	}
	if reason := CheckQuantity(q); reason != "" {
		return decimal.Zero, reason
	}
	return q, ""
}

// CheckQuantity reports why q cannot be recorded, or "" when it can. The
// exponent is checked first so that String and Truncate never run on an
// unbounded value.
func CheckQuantity(q decimal.Decimal) string {
	if exp := q.Exponent(); exp > maxQuantityExponent || exp < -maxQuantityExponent {
		return "quantity out of range"
	}
	if q.IsNegative() {
		return fmt.Sprintf("negative quantity %s", q.String())
	}
	if q.GreaterThan(maxQuantity) {
		return fmt.Sprintf("quantity %s exceeds %s", q.String(), maxQuantity.String())
	}
	if !q.Equal(q.Truncate(maxQuantityScale)) {
		return fmt.Sprintf("quantity %s has more than %d decimal places", q.String(), maxQuantityScale)
	}
	return ""
}
