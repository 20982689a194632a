package factor

import (
	_ "embed"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/ecoledger/internal/model"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// document is the YAML shape of a reference data file.
type document struct {
	Units        []unitDoc         `yaml:"units"`
	Factors      []factorDoc       `yaml:"factors"`
	Keywords     map[string]string `yaml:"keywords"`
	UnitDefaults map[string]string `yaml:"unit_defaults"`
	Fallbacks    map[string]string `yaml:"fallbacks"`
}

type unitDoc struct {
	Canonical string   `yaml:"canonical"`
	Dimension string   `yaml:"dimension"`
	Scale     float64  `yaml:"scale"`
	Aliases   []string `yaml:"aliases"`
}

type factorDoc struct {
	Key             string  `yaml:"key"`
	Category        string  `yaml:"category"`
	Value           float64 `yaml:"value"`
	Unit            string  `yaml:"unit"`
	Source          string  `yaml:"source"`
	Formula         string  `yaml:"formula"`
	IndustryAverage bool    `yaml:"industry_average"`
}

var loadDefault = sync.OnceValues(func() (*Table, error) {
	return Parse(defaultsYAML)
})

// Default returns the built-in reference table.
func Default() (*Table, error) {
	return loadDefault()
}

// Parse builds a standalone table from YAML.
func Parse(data []byte) (*Table, error) {
	doc, err := decode(data)
	if err != nil {
		return nil, err
	}
	return build(doc)
}

// LoadFile overlays the YAML file at path onto the built-in table. Entries in
// the file replace built-in entries with the same key.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "factor: read %s", path)
	}
	base, err := decode(defaultsYAML)
	if err != nil {
		return nil, err
	}
	overlay, err := decode(data)
	if err != nil {
		return nil, eris.Wrapf(err, "factor: parse %s", path)
	}
	return build(merge(base, overlay))
}

func decode(data []byte) (document, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return document{}, eris.Wrap(err, "factor: parse yaml")
	}
	return doc, nil
}

func merge(base, overlay document) document {
	out := document{
		Keywords:     make(map[string]string),
		UnitDefaults: make(map[string]string),
		Fallbacks:    make(map[string]string),
	}

	unitIdx := make(map[string]int)
	for _, u := range append(base.Units, overlay.Units...) {
		if i, ok := unitIdx[u.Canonical]; ok {
			out.Units[i] = u
			continue
		}
		unitIdx[u.Canonical] = len(out.Units)
		out.Units = append(out.Units, u)
	}

	factorIdx := make(map[string]int)
	for _, f := range append(base.Factors, overlay.Factors...) {
		if i, ok := factorIdx[f.Key]; ok {
			out.Factors[i] = f
			continue
		}
		factorIdx[f.Key] = len(out.Factors)
		out.Factors = append(out.Factors, f)
	}

	for _, m := range []map[string]string{base.Keywords, overlay.Keywords} {
		for k, v := range m {
			out.Keywords[k] = v
		}
	}
	for _, m := range []map[string]string{base.UnitDefaults, overlay.UnitDefaults} {
		for k, v := range m {
			out.UnitDefaults[k] = v
		}
	}
	for _, m := range []map[string]string{base.Fallbacks, overlay.Fallbacks} {
		for k, v := range m {
			out.Fallbacks[k] = v
		}
	}
	return out
}

func build(doc document) (*Table, error) {
	t := &Table{
		units:        make(map[string]Unit),
		aliases:      make(map[string]string),
		factors:      make(map[string]model.FactorEntry),
		unitDefaults: make(map[string]string),
		fallbacks:    make(map[string]string),
	}

	for _, u := range doc.Units {
		if u.Canonical == "" || u.Dimension == "" {
			return nil, eris.Errorf("factor: unit %q needs canonical and dimension", u.Canonical)
		}
		if u.Scale <= 0 {
			return nil, eris.Errorf("factor: unit %q has non-positive scale", u.Canonical)
		}
		t.units[u.Canonical] = Unit{
			Canonical: u.Canonical,
			Dimension: u.Dimension,
			Scale:     decimal.NewFromFloat(u.Scale),
		}
		t.aliases[NormalizeUnitKey(u.Canonical)] = u.Canonical
		for _, a := range u.Aliases {
			t.aliases[NormalizeUnitKey(a)] = u.Canonical
		}
	}

	for _, f := range doc.Factors {
		if f.Key == "" || f.Category == "" {
			return nil, eris.Errorf("factor: entry %q needs key and category", f.Key)
		}
		if _, ok := t.units[f.Unit]; !ok {
			return nil, eris.Errorf("factor: entry %q uses unknown unit %q", f.Key, f.Unit)
		}
		if f.Value < 0 {
			return nil, eris.Errorf("factor: entry %q has negative value", f.Key)
		}
		if strings.TrimSpace(f.Source) == "" {
			return nil, eris.Errorf("factor: entry %q has no source", f.Key)
		}
		if _, dup := t.factors[f.Key]; dup {
			return nil, eris.Errorf("factor: duplicate entry %q", f.Key)
		}
		t.factors[f.Key] = model.FactorEntry{
			Key:             f.Key,
			Category:        f.Category,
			Value:           decimal.NewFromFloat(f.Value),
			Unit:            f.Unit,
			Source:          f.Source,
			FormulaTemplate: f.Formula,
			IndustryAverage: f.IndustryAverage,
		}
		t.order = append(t.order, f.Key)
	}

	for phrase, key := range doc.Keywords {
		if _, ok := t.factors[key]; !ok {
			return nil, eris.Errorf("factor: keyword %q references unknown factor %q", phrase, key)
		}
		p := strings.Join(strings.Fields(strings.ToLower(phrase)), " ")
		if p == "" {
			continue
		}
		t.keywords = append(t.keywords, Keyword{Phrase: p, FactorKey: key})
	}
	// Longest phrase wins so "diesel generator" beats "diesel".
	sort.Slice(t.keywords, func(i, j int) bool {
		li, lj := len(t.keywords[i].Phrase), len(t.keywords[j].Phrase)
		if li != lj {
			return li > lj
		}
		return t.keywords[i].Phrase < t.keywords[j].Phrase
	})

	for unit, key := range doc.UnitDefaults {
		if _, ok := t.units[unit]; !ok {
			return nil, eris.Errorf("factor: unit default for unknown unit %q", unit)
		}
		f, ok := t.factors[key]
		if !ok {
			return nil, eris.Errorf("factor: unit default %q references unknown factor %q", unit, key)
		}
		if !t.Compatible(unit, f.Unit) {
			return nil, eris.Errorf("factor: unit default %q cannot convert to %q", unit, f.Unit)
		}
		t.unitDefaults[unit] = key
	}

	for dim, key := range doc.Fallbacks {
		f, ok := t.factors[key]
		if !ok {
			return nil, eris.Errorf("factor: fallback for %q references unknown factor %q", dim, key)
		}
		if t.units[f.Unit].Dimension != dim {
			return nil, eris.Errorf("factor: fallback %q is not a %s factor", key, dim)
		}
		t.fallbacks[dim] = key
	}

	return t, nil
}
