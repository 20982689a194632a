// Package pipeline runs one CSV upload through normalization, deduplication,
// classification, calculation, and the ledger append as a single unit of
// work.
package pipeline

import (
	"context"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/ecoledger/internal/calc"
	"github.com/sells-group/ecoledger/internal/classify"
	"github.com/sells-group/ecoledger/internal/fingerprint"
	"github.com/sells-group/ecoledger/internal/model"
	"github.com/sells-group/ecoledger/internal/normalize"
	"github.com/sells-group/ecoledger/internal/store"
)

// Ledger is the append side of the ledger the pipeline writes to.
type Ledger interface {
	fingerprint.Lookup
	AppendBatch(ctx context.Context, entries []model.Activity) (*store.AppendResult, error)
}

// Options tune a Pipeline.
type Options struct {
	// Workers bounds parallel classification. Zero uses GOMAXPROCS.
	Workers int
}

// Pipeline is safe for concurrent use; each Ingest call is independent.
type Pipeline struct {
	normalizer *normalize.Normalizer
	classifier classify.Classifier
	engine     *calc.Engine
	ledger     Ledger
	workers    int
	newBatchID func() string
}

// New creates a Pipeline.
func New(n *normalize.Normalizer, c classify.Classifier, e *calc.Engine, l Ledger, opts Options) *Pipeline {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Pipeline{
		normalizer: n,
		classifier: c,
		engine:     e,
		ledger:     l,
		workers:    workers,
		newBatchID: func() string { return uuid.New().String() },
	}
}

// Ingest processes one upload. A *model.SchemaError aborts the batch with
// nothing committed. Row errors and duplicates are reported in the result
// and never block valid rows.
func (p *Pipeline) Ingest(ctx context.Context, data []byte) (*model.UploadResult, error) {
	start := time.Now()
	batchID := p.newBatchID()
	log := zap.L().With(zap.String("component", "pipeline"), zap.String("batch_id", batchID))

	norm, err := p.normalizer.Normalize(ctx, data)
	if err != nil {
		return nil, err
	}

	result := &model.UploadResult{
		BatchID:   batchID,
		RowErrors: norm.Errors,
		IDs:       []int64{},
	}
	if result.RowErrors == nil {
		result.RowErrors = []model.RowError{}
	}

	admitted, dups, err := p.dedupe(ctx, norm.Records)
	if err != nil {
		return nil, err
	}
	result.DuplicatesSkipped = dups

	entries, err := p.classify(ctx, batchID, admitted)
	if err != nil {
		return nil, err
	}

	if len(entries) > 0 {
		appended, err := p.ledger.AppendBatch(ctx, entries)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: append")
		}
		// A concurrent upload may have committed the same record between
		// the fingerprint check and the append.
		result.DuplicatesSkipped += len(appended.Duplicates)
		for _, a := range appended.Inserted {
			result.IDs = append(result.IDs, a.ID)
		}
		result.Committed = len(appended.Inserted)
	}

	log.Info("pipeline: upload processed",
		zap.Int("rows", norm.Rows),
		zap.Int("committed", result.Committed),
		zap.Int("duplicates_skipped", result.DuplicatesSkipped),
		zap.Int("row_errors", len(result.RowErrors)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

type admittedRecord struct {
	rec model.RawRecord
	fp  model.Fingerprint
}

// dedupe drops records whose fingerprint is already in the ledger or
// appeared earlier in the batch. Order is preserved.
func (p *Pipeline) dedupe(ctx context.Context, recs []model.RawRecord) ([]admittedRecord, int, error) {
	fps := make([]model.Fingerprint, len(recs))
	for i, r := range recs {
		fps[i] = fingerprint.Compute(r)
	}

	ix := fingerprint.NewIndex(p.ledger)
	if err := ix.Preload(ctx, fps); err != nil {
		return nil, 0, eris.Wrap(err, "pipeline: dedupe")
	}

	var (
		out  []admittedRecord
		dups int
	)
	for i, r := range recs {
		ok, err := ix.Admit(ctx, fps[i])
		if err != nil {
			return nil, 0, eris.Wrap(err, "pipeline: dedupe")
		}
		if !ok {
			dups++
			continue
		}
		out = append(out, admittedRecord{rec: r, fp: fps[i]})
	}
	return out, dups, nil
}

// classify resolves and computes every admitted record in parallel. Results
// keep input order.
func (p *Pipeline) classify(ctx context.Context, batchID string, recs []admittedRecord) ([]model.Activity, error) {
	entries := make([]model.Activity, len(recs))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, ar := range recs {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			cls := p.classifier.Classify(ar.rec)
			res, err := p.engine.Compute(ar.rec, cls.Factor)
			if err != nil {
				return eris.Wrapf(err, "pipeline: compute row %d", ar.rec.Row)
			}
			entries[i] = model.Activity{
				Fingerprint:  ar.fp,
				BatchID:      batchID,
				Date:         ar.rec.Date,
				Description:  ar.rec.Description,
				Quantity:     ar.rec.Quantity,
				Unit:         ar.rec.Unit,
				ActivityType: cls.ActivityType,
				CO2e:         res.CO2e,
				Confidence:   cls.Confidence,
				Details:      p.engine.Details(ar.rec, cls.Factor, res, cls.Method),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Correct builds a replacement entry for a corrected record. The caller
// appends it through the ledger's supersede path.
func (p *Pipeline) Correct(rec model.RawRecord) (model.Activity, error) {
	cls := p.classifier.Classify(rec)
	res, err := p.engine.Compute(rec, cls.Factor)
	if err != nil {
		return model.Activity{}, eris.Wrap(err, "pipeline: correct")
	}
	return model.Activity{
		Fingerprint:  fingerprint.Compute(rec),
		BatchID:      p.newBatchID(),
		Date:         rec.Date,
		Description:  rec.Description,
		Quantity:     rec.Quantity,
		Unit:         rec.Unit,
		ActivityType: cls.ActivityType,
		CO2e:         res.CO2e,
		Confidence:   cls.Confidence,
		Details:      p.engine.Details(rec, cls.Factor, res, cls.Method),
	}, nil
}
