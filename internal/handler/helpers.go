package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/dje115/choreblimey-sub001/internal/errs"
)

func parseIDParam(r *http.Request) (int64, error) {
	idStr := r.PathValue("id")
	return strconv.ParseInt(idStr, 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy onto HTTP statuses and hides
// storage details behind a generic message.
func writeError(w http.ResponseWriter, err error) {
	var status int
	msg := err.Error()

	switch errs.KindOf(err) {
	case errs.KindValidation:
		status = http.StatusBadRequest
	case errs.KindNotFound:
		status = http.StatusNotFound
	case errs.KindConflict:
		status = http.StatusConflict
	case errs.KindInsufficientFunds:
		status = http.StatusUnprocessableEntity
	case errs.KindUnauthorized:
		status = http.StatusForbidden
	default:
		status = http.StatusInternalServerError
		msg = "internal error"
	}

	writeJSON(w, status, map[string]string{"error": msg})
}
