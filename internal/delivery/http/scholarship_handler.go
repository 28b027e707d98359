package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"scholarships/internal/domain"
	"scholarships/pkg/jsonpatch"
	"scholarships/pkg/utils"
)

const (
	maxBodyBytes       = 1 << 20
	patchAppliedHeader = "X-Patch-Applied"
)

var errBadIfMatch = errors.New("If-Match must be a version tag such as \"3\"")

// ScholarshipHandler handles HTTP requests for scholarships
type ScholarshipHandler struct {
	uc     domain.ScholarshipUseCase
	logger *zap.Logger
}

// NewScholarshipHandler creates a new scholarship handler
func NewScholarshipHandler(uc domain.ScholarshipUseCase, logger *zap.Logger) *ScholarshipHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScholarshipHandler{
		uc:     uc,
		logger: logger,
	}
}

// List handles GET /scholarships?limit=n
func (h *ScholarshipHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.fail(w, r, fmt.Errorf("limit must be a positive integer, got %q", raw), http.StatusBadRequest)
			return
		}
		limit = n
	}

	records, err := h.uc.List(r.Context(), limit)
	if err != nil {
		h.failWith(w, r, err)
		return
	}
	if records == nil {
		records = []*domain.Record{}
	}

	writeJSON(w, http.StatusOK, records)
}

// Get handles GET /scholarship/{id}
func (h *ScholarshipHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.uc.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.failWith(w, r, err)
		return
	}

	setETag(w, rec)
	writeJSON(w, http.StatusOK, rec)
}

// Create handles POST /scholarship
func (h *ScholarshipHandler) Create(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readDocument(w, r)
	if !ok {
		return
	}

	rec, err := h.uc.Create(r.Context(), body)
	if err != nil {
		h.failWith(w, r, err)
		return
	}

	w.Header().Set("Location", APIPrefix+"/scholarship/"+rec.ID)
	setETag(w, rec)
	writeJSON(w, http.StatusCreated, rec)
}

// Replace handles PUT /scholarship/{id}
func (h *ScholarshipHandler) Replace(w http.ResponseWriter, r *http.Request) {
	ifMatch, ok := h.ifMatch(w, r)
	if !ok {
		return
	}
	body, ok := h.readDocument(w, r)
	if !ok {
		return
	}

	rec, err := h.uc.Replace(r.Context(), mux.Vars(r)["id"], body, ifMatch)
	if err != nil {
		h.failWith(w, r, err)
		return
	}

	setETag(w, rec)
	writeJSON(w, http.StatusOK, rec)
}

// Patch handles PATCH /scholarship/{id} with a JSON Patch body. When a test
// operation fails the stored document is returned unchanged with 201 and
// X-Patch-Applied: false.
func (h *ScholarshipHandler) Patch(w http.ResponseWriter, r *http.Request) {
	ifMatch, ok := h.ifMatch(w, r)
	if !ok {
		return
	}
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	result, err := h.uc.Patch(r.Context(), mux.Vars(r)["id"], body, ifMatch)
	if err != nil {
		h.failWith(w, r, err)
		return
	}

	setETag(w, result.Record)
	w.Header().Set(patchAppliedHeader, strconv.FormatBool(result.Applied))
	if !result.Applied {
		writeJSON(w, http.StatusCreated, result.Record)
		return
	}
	writeJSON(w, http.StatusOK, result.Record)
}

// Delete handles DELETE /scholarship/{id}. Deleting an absent record is not
// an error.
func (h *ScholarshipHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ifMatch, ok := h.ifMatch(w, r)
	if !ok {
		return
	}

	rec, err := h.uc.Delete(r.Context(), mux.Vars(r)["id"], ifMatch)
	if errors.Is(err, domain.ErrNotFound) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		h.failWith(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func (h *ScholarshipHandler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.fail(w, r, err, http.StatusRequestEntityTooLarge)
			return nil, false
		}
		h.fail(w, r, fmt.Errorf("read request body: %w", err), http.StatusBadRequest)
		return nil, false
	}
	return body, true
}

func (h *ScholarshipHandler) readDocument(w http.ResponseWriter, r *http.Request) (jsonpatch.Value, bool) {
	body, ok := h.readBody(w, r)
	if !ok {
		return nil, false
	}
	doc, err := jsonpatch.ParseValue(body)
	if err != nil {
		h.fail(w, r, fmt.Errorf("invalid JSON: %w", err), http.StatusBadRequest)
		return nil, false
	}
	return doc, true
}

// ifMatch parses the If-Match header into an expected version. An absent
// header or "*" yields zero, meaning any version.
func (h *ScholarshipHandler) ifMatch(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := strings.TrimSpace(r.Header.Get("If-Match"))
	if raw == "" || raw == "*" {
		return 0, true
	}

	tag := strings.Trim(strings.TrimPrefix(raw, "W/"), `"`)
	version, err := strconv.ParseInt(tag, 10, 64)
	if err != nil || version < 1 {
		h.fail(w, r, errBadIfMatch, http.StatusPreconditionFailed)
		return 0, false
	}
	return version, true
}

// failWith maps a use case error onto a status code
func (h *ScholarshipHandler) failWith(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		r = utils.WithErrorAndCodeAndMessage(r, err, code, http.StatusText(code))
		utils.WriteError(w, r)
		return
	}
	h.fail(w, r, err, code)
}

func (h *ScholarshipHandler) fail(w http.ResponseWriter, r *http.Request, err error, code int) {
	r = utils.WithErrorAndCode(r, err, code)
	utils.WriteError(w, r)
}

func statusFor(err error) int {
	var patchErr *jsonpatch.Error
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrVersionMismatch):
		return http.StatusPreconditionFailed
	case errors.Is(err, domain.ErrInvalidDocument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidResult):
		return http.StatusUnprocessableEntity
	case errors.As(err, &patchErr):
		if patchErr.Kind == jsonpatch.InvalidPatch {
			return http.StatusBadRequest
		}
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func setETag(w http.ResponseWriter, rec *domain.Record) {
	if rec != nil && rec.Version > 0 {
		w.Header().Set("ETag", strconv.Quote(strconv.FormatInt(rec.Version, 10)))
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
