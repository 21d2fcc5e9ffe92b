package entries

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/medrex/glucose-tracker/pkg/interfaces"
	"github.com/medrex/glucose-tracker/pkg/logger"
	"github.com/medrex/glucose-tracker/pkg/types"
)

// Handler serves the /api/entries routes
type Handler struct {
	service     interfaces.EntriesService
	logger      *logger.Logger
	totalHeader string
}

// NewHandler creates the HTTP handler. totalHeader names the response header
// carrying the total entry count.
func NewHandler(service interfaces.EntriesService, log *logger.Logger, totalHeader string) *Handler {
	if totalHeader == "" {
		totalHeader = "X-Total-Count"
	}
	return &Handler{
		service:     service,
		logger:      log,
		totalHeader: totalHeader,
	}
}

// RegisterRoutes registers the entry routes
func (h *Handler) RegisterRoutes(router *mux.Router) {
	api := router.PathPrefix("/api/entries").Subrouter()

	api.HandleFunc("", h.createEntry).Methods(http.MethodPost)
	api.HandleFunc("", h.listEntries).Methods(http.MethodGet)
	api.HandleFunc("/recommended-spots", h.recommendedSpots).Methods(http.MethodGet)
	api.HandleFunc("/{id:-?[0-9]+}", h.deleteEntry).Methods(http.MethodDelete)
}

func (h *Handler) createEntry(w http.ResponseWriter, r *http.Request) {
	var payload types.SubmissionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, r, types.NewValidationError(types.ErrCodeInvalidInput, "invalid request body", map[string]interface{}{
			"error": err.Error(),
		}))
		return
	}

	entry, err := h.service.Create(r.Context(), &payload)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, entry)
}

func (h *Handler) listEntries(w http.ResponseWriter, r *http.Request) {
	query, err := parseListQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	entries, total, err := h.service.List(r.Context(), query)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set(h.totalHeader, strconv.Itoa(total))
	w.Header().Set("Access-Control-Expose-Headers", h.totalHeader)
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) deleteEntry(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		h.writeError(w, r, types.NewValidationError(types.ErrCodeInvalidInput, "invalid entry id", nil))
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) recommendedSpots(w http.ResponseWriter, r *http.Request) {
	codes, err := h.service.RecommendedSpots(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, codes)
}

// parseListQuery reads sortBy, page and size, applying defaults for absent values
func parseListQuery(r *http.Request) (*types.ListQuery, error) {
	q := r.URL.Query()
	query := &types.ListQuery{
		SortBy: types.DefaultSortKey,
		Page:   types.DefaultPage,
		Size:   types.DefaultPageSize,
	}

	if v := q.Get("sortBy"); v != "" {
		query.SortBy = types.SortKey(v)
	}

	for name, dst := range map[string]*int{"page": &query.Page, "size": &query.Size} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, types.NewValidationError(types.ErrCodeInvalidInput, name+" must be an integer", map[string]interface{}{
				name: v,
			})
		}
		*dst = n
	}

	return query, nil
}

type errorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	resp := errorResponse{Error: "internal error", Code: types.ErrCodeInternalError}

	var te *types.TrackerError
	if errors.As(err, &te) {
		resp = errorResponse{Error: te.Message, Code: te.Code, Details: te.Details}
		switch te.Type {
		case types.ErrorTypeValidation:
			status = http.StatusBadRequest
		case types.ErrorTypeNotFound:
			status = http.StatusNotFound
		}
	}

	entry := h.logger.WithContext(r.Context()).WithError(err).WithField("status", status)
	if status >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Debug("Request rejected")
	}

	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
