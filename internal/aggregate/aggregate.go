// Package aggregate derives summaries from a ledger snapshot. Every function
// here is pure: the same activities always produce the same Summary.
package aggregate

import (
	"fmt"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/ecoledger/internal/model"
)

// Period is a trend bucket width.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// ParsePeriod validates a period name. The empty string selects month.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case "":
		return PeriodMonth, nil
	case PeriodDay, PeriodWeek, PeriodMonth:
		return Period(s), nil
	default:
		return "", eris.Errorf("aggregate: unknown period %q", s)
	}
}

// Defaults.
const (
	DefaultHotspotLimit = 5
	DefaultDecimals     = 1
)

// Thresholds map a share of the total (0..1) to an impact level. A share
// above High is High, above Medium is Medium, otherwise Low.
type Thresholds struct {
	High   float64 `yaml:"high" mapstructure:"high"`
	Medium float64 `yaml:"medium" mapstructure:"medium"`
}

// DefaultThresholds follow the 80/20 reading: a fifth of the total is High.
var DefaultThresholds = Thresholds{High: 0.20, Medium: 0.10}

// Level returns the impact tier for share.
func (t Thresholds) Level(share float64) model.Level {
	switch {
	case share > t.High:
		return model.LevelHigh
	case share > t.Medium:
		return model.LevelMedium
	default:
		return model.LevelLow
	}
}

// Options tune Summarize. Zero values select defaults.
type Options struct {
	Period       Period
	ZeroFill     bool
	HotspotLimit int
	From         *time.Time
	To           *time.Time
	Thresholds   *Thresholds
	// Decimals is the number of decimal places kept in category percentages.
	Decimals int
}

func (o Options) withDefaults() Options {
	if o.Period == "" {
		o.Period = PeriodMonth
	}
	if o.HotspotLimit <= 0 {
		o.HotspotLimit = DefaultHotspotLimit
	}
	if o.Thresholds == nil {
		t := DefaultThresholds
		o.Thresholds = &t
	}
	if o.Decimals <= 0 {
		o.Decimals = DefaultDecimals
	}
	return o
}

// Summarize builds the Summary for activities within the window.
func Summarize(activities []model.Activity, opts Options) model.Summary {
	opts = opts.withDefaults()
	scope := Window(activities, opts.From, opts.To)

	total := decimal.Zero
	for _, a := range scope {
		total = total.Add(a.CO2e)
	}

	return model.Summary{
		TotalCO2e:            total,
		ActivityCount:        len(scope),
		CategoryDistribution: Distribution(scope, opts.Decimals),
		TrendData:            Trend(scope, opts.Period, opts.ZeroFill),
		Hotspots:             Hotspots(scope, total, opts.HotspotLimit, *opts.Thresholds),
	}
}

// Window keeps activities dated within [from, to]. Nil bounds are open.
func Window(activities []model.Activity, from, to *time.Time) []model.Activity {
	if from == nil && to == nil {
		return activities
	}
	var out []model.Activity
	for _, a := range activities {
		d := dateOnly(a.Date)
		if from != nil && d.Before(dateOnly(*from)) {
			continue
		}
		if to != nil && d.After(dateOnly(*to)) {
			continue
		}
		out = append(out, a)
	}
	return out
}

type categoryTotal struct {
	name  string
	co2e  decimal.Decimal
	count int
}

// Distribution groups activities by type and returns each category's share
// of the total in percent, ordered by CO2e descending then name. Shares are
// rounded with the largest-remainder method to the given number of decimal
// places so they sum to exactly 100. When every activity has zero CO2e the
// shares are by activity count instead.
func Distribution(activities []model.Activity, decimals int) []model.CategoryShare {
	if len(activities) == 0 {
		return []model.CategoryShare{}
	}

	byName := make(map[string]*categoryTotal)
	var cats []*categoryTotal
	total := decimal.Zero
	for _, a := range activities {
		c, ok := byName[a.ActivityType]
		if !ok {
			c = &categoryTotal{name: a.ActivityType, co2e: decimal.Zero}
			byName[a.ActivityType] = c
			cats = append(cats, c)
		}
		c.co2e = c.co2e.Add(a.CO2e)
		c.count++
		total = total.Add(a.CO2e)
	}

	weights := make([]decimal.Decimal, len(cats))
	denom := total
	for i, c := range cats {
		weights[i] = c.co2e
	}
	if total.IsZero() {
		denom = decimal.NewFromInt(int64(len(activities)))
		for i, c := range cats {
			weights[i] = decimal.NewFromInt(int64(c.count))
		}
	}

	percents := largestRemainder(weights, denom, decimals)
	out := make([]model.CategoryShare, len(cats))
	for i, c := range cats {
		out[i] = model.CategoryShare{Name: c.name, Percent: percents[i], CO2e: c.co2e}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if cmp := out[i].CO2e.Cmp(out[j].CO2e); cmp != 0 {
			return cmp > 0
		}
		if out[i].Percent != out[j].Percent {
			return out[i].Percent > out[j].Percent
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// largestRemainder apportions 100% across weights in units of 10^-decimals
// percent. Leftover units go to the largest remainders; ties go to the
// earlier index.
func largestRemainder(weights []decimal.Decimal, denom decimal.Decimal, decimals int) []float64 {
	unitsTotal := decimal.NewFromInt(100).Shift(int32(decimals))
	floors := make([]int64, len(weights))
	rems := make([]decimal.Decimal, len(weights))
	var assigned int64
	for i, w := range weights {
		exact := w.Mul(unitsTotal).Div(denom)
		f := exact.Floor()
		floors[i] = f.IntPart()
		rems[i] = exact.Sub(f)
		assigned += floors[i]
	}

	order := make([]int, len(weights))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return rems[order[a]].GreaterThan(rems[order[b]])
	})
	for k := int64(0); k < unitsTotal.IntPart()-assigned; k++ {
		floors[order[int(k)%len(order)]]++
	}

	out := make([]float64, len(weights))
	for i, f := range floors {
		out[i] = decimal.NewFromInt(f).Shift(-int32(decimals)).InexactFloat64()
	}
	return out
}

// Trend sums CO2e per period bucket in chronological order. Empty buckets
// between the first and last are emitted with zero CO2e when zeroFill is
// set and omitted otherwise.
func Trend(activities []model.Activity, period Period, zeroFill bool) []model.TrendPoint {
	sums := make(map[time.Time]decimal.Decimal)
	for _, a := range activities {
		start := BucketStart(a.Date, period)
		sums[start] = sums[start].Add(a.CO2e)
	}
	if len(sums) == 0 {
		return []model.TrendPoint{}
	}

	starts := make([]time.Time, 0, len(sums))
	for s := range sums {
		starts = append(starts, s)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })

	if zeroFill {
		var filled []time.Time
		last := starts[len(starts)-1]
		for s := starts[0]; !s.After(last); s = nextBucket(s, period) {
			filled = append(filled, s)
		}
		starts = filled
	}

	out := make([]model.TrendPoint, len(starts))
	for i, s := range starts {
		out[i] = model.TrendPoint{Period: Label(s, period), Start: s, CO2e: sums[s]}
	}
	return out
}

// BucketStart returns the first day of the bucket containing t. Weeks are
// ISO weeks starting on Monday.
func BucketStart(t time.Time, period Period) time.Time {
	d := dateOnly(t)
	switch period {
	case PeriodDay:
		return d
	case PeriodWeek:
		offset := (int(d.Weekday()) + 6) % 7
		return d.AddDate(0, 0, -offset)
	default:
		return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
}

func nextBucket(start time.Time, period Period) time.Time {
	switch period {
	case PeriodDay:
		return start.AddDate(0, 0, 1)
	case PeriodWeek:
		return start.AddDate(0, 0, 7)
	default:
		return start.AddDate(0, 1, 0)
	}
}

// Label renders a bucket start: 2024-01-15 for days, 2024-W03 for ISO weeks,
// 2024-01 for months.
func Label(start time.Time, period Period) string {
	switch period {
	case PeriodDay:
		return start.Format(model.DateLayout)
	case PeriodWeek:
		y, w := start.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", y, w)
	default:
		return start.Format("2006-01")
	}
}

// Hotspots returns the top limit activities by CO2e. Ties sort the more
// recent date first, then the higher id. Impact is the activity's share of
// total under the thresholds.
func Hotspots(activities []model.Activity, total decimal.Decimal, limit int, th Thresholds) []model.Hotspot {
	sorted := make([]model.Activity, len(activities))
	copy(sorted, activities)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if cmp := a.CO2e.Cmp(b.CO2e); cmp != 0 {
			return cmp > 0
		}
		if !a.Date.Equal(b.Date) {
			return a.Date.After(b.Date)
		}
		return a.ID > b.ID
	})
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}

	out := make([]model.Hotspot, len(sorted))
	for i, a := range sorted {
		share := 0.0
		if !total.IsZero() {
			share = a.CO2e.Div(total).InexactFloat64()
		}
		out[i] = model.Hotspot{
			ID:           a.ID,
			Description:  a.Description,
			ActivityType: a.ActivityType,
			Date:         a.Date,
			CO2e:         a.CO2e,
			Impact:       th.Level(share),
		}
	}
	return out
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
