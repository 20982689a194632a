package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/ecoledger/internal/aggregate"
	"github.com/sells-group/ecoledger/internal/model"
	"github.com/sells-group/ecoledger/internal/store"
)

// maxReportedRowErrors bounds the row errors quoted in a 422 detail.
const maxReportedRowErrors = 3

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Expected a multipart form with a file field")
		return
	}

	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close() //nolint:errcheck

	if !strings.EqualFold(filepath.Ext(hdr.Filename), ".csv") {
		writeError(w, http.StatusBadRequest, "Invalid file type. Please upload a CSV.")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Could not read uploaded file")
		return
	}

	res, err := s.deps.Pipeline.Ingest(r.Context(), data)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	if res.Committed == 0 && res.DuplicatesSkipped == 0 && len(res.RowErrors) > 0 {
		writeError(w, http.StatusUnprocessableEntity, rejectedDetail(res.RowErrors))
		return
	}

	writeJSON(w, http.StatusOK, uploadView{
		Message:           uploadMessage(res),
		BatchID:           res.BatchID,
		Committed:         res.Committed,
		DuplicatesSkipped: res.DuplicatesSkipped,
		RowErrors:         res.RowErrors,
		IDs:               res.IDs,
	})
}

func uploadMessage(res *model.UploadResult) string {
	msg := fmt.Sprintf("Successfully processed %d activities", res.Committed)
	var extra []string
	if res.DuplicatesSkipped > 0 {
		extra = append(extra, fmt.Sprintf("%d duplicates skipped", res.DuplicatesSkipped))
	}
	if n := len(res.RowErrors); n > 0 {
		extra = append(extra, fmt.Sprintf("%d row errors", n))
	}
	if len(extra) > 0 {
		msg += ", " + strings.Join(extra, ", ")
	}
	return msg
}

func rejectedDetail(rowErrs []model.RowError) string {
	parts := make([]string, 0, maxReportedRowErrors)
	for i, e := range rowErrs {
		if i == maxReportedRowErrors {
			parts = append(parts, fmt.Sprintf("and %d more", len(rowErrs)-i))
			break
		}
		parts = append(parts, e.Error())
	}
	return "No valid rows: " + strings.Join(parts, "; ")
}

func (s *Server) handleActivities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ActivityFilter{
		ActivityType:      q.Get("type"),
		Desc:              q.Get("order") != "asc",
		IncludeSuperseded: q.Get("include_superseded") == "true",
	}

	var ok bool
	if filter.From, ok = dateParam(w, q, "from"); !ok {
		return
	}
	if filter.To, ok = dateParam(w, q, "to"); !ok {
		return
	}
	if filter.Limit, ok = intParam(w, q, "limit"); !ok {
		return
	}
	if filter.Offset, ok = intParam(w, q, "offset"); !ok {
		return
	}

	acts, err := s.deps.Ledger.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	out := make([]activityView, len(acts))
	for i, a := range acts {
		out[i] = s.activityView(a)
	}
	writeJSON(w, http.StatusOK, out)
}

type correctionRequest struct {
	Date        string      `json:"date"`
	Description string      `json:"description"`
	Quantity    json.Number `json:"quantity"`
	Unit        string      `json:"unit"`
}

func (s *Server) handleCorrect(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req correctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	rec, err := s.deps.Normalizer.Record(req.Date, req.Description, req.Quantity.String(), req.Unit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	entry, err := s.deps.Pipeline.Correct(rec)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	fixed, err := s.deps.Ledger.Supersede(r.Context(), id, entry)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.activityView(*fixed))
}

func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	e, err := s.deps.Explainer.Explain(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.explainView(e))
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, ok := s.summarize(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.summaryView(sum))
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	sum, ok := s.summarize(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Recommender.Recommend(sum))
}

func (s *Server) handleNarrative(w http.ResponseWriter, r *http.Request) {
	sum, ok := s.summarize(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"content": s.deps.Recommender.Narrative(sum, s.cfg.CO2eUnit, s.cfg.Precision),
	})
}

// summarize reads the window and period from the query and summarizes the
// current ledger. It writes the error response itself and reports false on
// failure.
func (s *Server) summarize(w http.ResponseWriter, r *http.Request) (model.Summary, bool) {
	q := r.URL.Query()
	from, ok := dateParam(w, q, "from")
	if !ok {
		return model.Summary{}, false
	}
	to, ok := dateParam(w, q, "to")
	if !ok {
		return model.Summary{}, false
	}
	period := s.cfg.Period
	if p := q.Get("period"); p != "" {
		var err error
		if period, err = aggregate.ParsePeriod(p); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid period %q", p))
			return model.Summary{}, false
		}
	}

	acts, err := s.deps.Ledger.Snapshot(r.Context(), from, to)
	if err != nil {
		writeDomainError(w, r, err)
		return model.Summary{}, false
	}
	th := s.cfg.Thresholds
	return aggregate.Summarize(acts, aggregate.Options{
		Period:       period,
		ZeroFill:     s.cfg.ZeroFill,
		HotspotLimit: s.cfg.HotspotLimit,
		Thresholds:   &th,
	}), true
}

func (s *Server) handleScenario(w http.ResponseWriter, r *http.Request) {
	var req model.ScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	res, err := s.deps.Simulator.Simulate(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.scenarioView(res))
}

func (s *Server) handleFactors(w http.ResponseWriter, _ *http.Request) {
	factors := s.deps.Factors.Factors()
	out := make([]factorView, len(factors))
	for i, f := range factors {
		out[i] = factorView{
			Key:             f.Key,
			Category:        f.Category,
			Value:           f.Value.InexactFloat64(),
			Unit:            f.Unit,
			Source:          f.Source,
			IndustryAverage: f.IndustryAverage,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid activity id %q", raw))
		return 0, false
	}
	return id, true
}

// dateParam reads an optional YYYY-MM-DD query parameter, writing a 400 and
// reporting false when it is malformed.
func dateParam(w http.ResponseWriter, q url.Values, name string) (*time.Time, bool) {
	v := q.Get(name)
	if v == "" {
		return nil, true
	}
	t, err := time.Parse(model.DateLayout, v)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s date %q: expected YYYY-MM-DD", name, v))
		return nil, false
	}
	return &t, true
}

func intParam(w http.ResponseWriter, q url.Values, name string) (int, bool) {
	v := q.Get(name)
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s %q", name, v))
		return 0, false
	}
	return n, true
}
