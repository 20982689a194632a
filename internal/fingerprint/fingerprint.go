// Package fingerprint computes content digests of normalized activity records
// and gates ingestion batches against fingerprints the ledger already holds.
package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ecoledger/internal/model"
	"github.com/sells-group/ecoledger/internal/normalize"
)

// separator is the ASCII unit separator; it cannot appear in a normalized
// field, so field boundaries are unambiguous.
const separator = "\x1f"

// version prefixes the digest input so a future change to the field set
// produces disjoint fingerprints.
const version = "v1"

// Compute returns the fingerprint of a record. It depends only on the
// record's logical content: date, folded description, quantity value, and
// canonical unit.
func Compute(r model.RawRecord) model.Fingerprint {
	h := sha256.New()
	for i, part := range []string{
		version,
		r.Date.UTC().Format(model.DateLayout),
		normalize.Fold(r.Description),
		r.Quantity.String(),
		r.Unit,
	} {
		if i > 0 {
			h.Write([]byte(separator))
		}
		h.Write([]byte(part))
	}
	return model.Fingerprint(hex.EncodeToString(h.Sum(nil)))
}

// Lookup reports which of the given fingerprints are already recorded.
type Lookup interface {
	ExistingFingerprints(ctx context.Context, fps []model.Fingerprint) (map[model.Fingerprint]bool, error)
}

// Index tracks fingerprints for one ingestion batch: those already in the
// ledger and those registered earlier in the batch. It is not safe for
// concurrent use; the ledger's unique constraint is the final arbiter across
// concurrent batches.
type Index struct {
	lookup Lookup
	known  map[model.Fingerprint]bool
	seen   map[model.Fingerprint]struct{}
}

// NewIndex creates an empty batch index over lookup.
func NewIndex(lookup Lookup) *Index {
	return &Index{
		lookup: lookup,
		known:  make(map[model.Fingerprint]bool),
		seen:   make(map[model.Fingerprint]struct{}),
	}
}

// Preload fetches ledger membership for fps in one round trip.
func (ix *Index) Preload(ctx context.Context, fps []model.Fingerprint) error {
	var missing []model.Fingerprint
	for _, fp := range fps {
		if _, ok := ix.known[fp]; !ok {
			missing = append(missing, fp)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	found, err := ix.lookup.ExistingFingerprints(ctx, missing)
	if err != nil {
		return eris.Wrap(err, "fingerprint: preload")
	}
	for _, fp := range missing {
		ix.known[fp] = found[fp]
	}
	return nil
}

// Exists reports whether fp is in the ledger or was registered in this batch.
func (ix *Index) Exists(ctx context.Context, fp model.Fingerprint) (bool, error) {
	if _, ok := ix.seen[fp]; ok {
		return true, nil
	}
	if err := ix.Preload(ctx, []model.Fingerprint{fp}); err != nil {
		return false, err
	}
	return ix.known[fp], nil
}

// Register marks fp as taken for the rest of the batch.
func (ix *Index) Register(fp model.Fingerprint) {
	ix.seen[fp] = struct{}{}
}

// Admit registers fp and returns true when it is new; false means the record
// is a duplicate and should be skipped.
func (ix *Index) Admit(ctx context.Context, fp model.Fingerprint) (bool, error) {
	exists, err := ix.Exists(ctx, fp)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	ix.Register(fp)
	return true, nil
}
