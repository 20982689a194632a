// Package classify maps a normalized record to an activity category and an
// emission factor. Matching is a chain of deterministic strategies; any
// Strategy implementation can be slotted in without touching the pipeline.
package classify

import (
	"strings"
	"unicode"

	"github.com/sells-group/ecoledger/internal/factor"
	"github.com/sells-group/ecoledger/internal/model"
	"github.com/sells-group/ecoledger/internal/normalize"
)

// Proposal is one candidate factor offered by a strategy.
type Proposal struct {
	Factor     model.FactorEntry
	Confidence model.Level
	Match      string
}

// Strategy proposes candidate factors for a record, best first. An empty
// result means the strategy has no opinion.
type Strategy interface {
	Method() model.Method
	Propose(rec model.RawRecord) []Proposal
}

// FactorSource is the read-only slice of the reference table strategies need.
type FactorSource interface {
	Factor(key string) (model.FactorEntry, bool)
	Keywords() []factor.Keyword
	UnitDefault(unit string) (model.FactorEntry, bool)
	Fallback(unit string) model.FactorEntry
}

// KeywordStrategy matches curated phrases against the description on word
// boundaries. Longer phrases are tried first.
type KeywordStrategy struct {
	src      FactorSource
	keywords []factor.Keyword
}

// NewKeywordStrategy creates a KeywordStrategy over src's keyword table.
func NewKeywordStrategy(src FactorSource) *KeywordStrategy {
	kws := src.Keywords()
	for i := range kws {
		kws[i].Phrase = tokens(kws[i].Phrase)
	}
	return &KeywordStrategy{src: src, keywords: kws}
}

func (s *KeywordStrategy) Method() model.Method { return model.MethodKeyword }

func (s *KeywordStrategy) Propose(rec model.RawRecord) []Proposal {
	text := " " + tokens(rec.Description) + " "
	var out []Proposal
	seen := make(map[string]bool)
	for _, kw := range s.keywords {
		if kw.Phrase == "" || seen[kw.FactorKey] {
			continue
		}
		if !strings.Contains(text, " "+kw.Phrase+" ") && !strings.Contains(text, " "+kw.Phrase+"s ") {
			continue
		}
		f, ok := s.src.Factor(kw.FactorKey)
		if !ok {
			continue
		}
		seen[kw.FactorKey] = true
		conf := model.LevelHigh
		if f.IndustryAverage {
			conf = model.LevelMedium
		}
		out = append(out, Proposal{Factor: f, Confidence: conf, Match: kw.Phrase})
	}
	return out
}

// UnitStrategy infers a factor from the record's unit alone.
type UnitStrategy struct {
	src FactorSource
}

// NewUnitStrategy creates a UnitStrategy.
func NewUnitStrategy(src FactorSource) *UnitStrategy {
	return &UnitStrategy{src: src}
}

func (s *UnitStrategy) Method() model.Method { return model.MethodUnit }

func (s *UnitStrategy) Propose(rec model.RawRecord) []Proposal {
	f, ok := s.src.UnitDefault(rec.Unit)
	if !ok {
		return nil
	}
	return []Proposal{{Factor: f, Confidence: model.LevelMedium, Match: rec.Unit}}
}

// FallbackStrategy always proposes the generic factor for the unit's
// dimension at Low confidence.
type FallbackStrategy struct {
	src FactorSource
}

// NewFallbackStrategy creates a FallbackStrategy.
func NewFallbackStrategy(src FactorSource) *FallbackStrategy {
	return &FallbackStrategy{src: src}
}

func (s *FallbackStrategy) Method() model.Method { return model.MethodFallback }

func (s *FallbackStrategy) Propose(rec model.RawRecord) []Proposal {
	return []Proposal{{Factor: s.src.Fallback(rec.Unit), Confidence: model.LevelLow}}
}

// tokens folds s and reduces it to space-separated letter/digit runs.
func tokens(s string) string {
	folded := normalize.Fold(s)
	return strings.Join(strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}), " ")
}
