package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/ecoledger/internal/model"
	"github.com/sells-group/ecoledger/internal/scenario"
)

type errorBody struct {
	Detail string `json:"detail"`
}

// writeJSON encodes v before committing the status so an unencodable value
// becomes a 500 instead of an empty 200.
func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		zap.L().Error("api: encode response", zap.Error(err))
		buf.Reset()
		status = http.StatusInternalServerError
		_ = json.NewEncoder(&buf).Encode(errorBody{Detail: "Internal server error"})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		zap.L().Warn("api: write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorBody{Detail: detail})
}

// writeDomainError maps engine errors to HTTP statuses. Unexpected errors are
// logged and reported without internals.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		schemaErr *model.SchemaError
		rowErr    *model.RowError
	)
	switch {
	case errors.As(err, &schemaErr):
		writeError(w, http.StatusBadRequest, schemaErr.Error())
	case errors.As(err, &rowErr):
		writeError(w, http.StatusBadRequest, rowErr.Reason)
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, "Activity not found")
	case errors.Is(err, model.ErrSuperseded):
		writeError(w, http.StatusConflict, "Activity has already been corrected")
	case errors.Is(err, model.ErrDuplicate):
		writeError(w, http.StatusConflict, "An identical activity is already recorded")
	case errors.Is(err, scenario.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		zap.L().Error("api: request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}
