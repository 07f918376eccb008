package httpadapter

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/kirillkom/document-autopilot/internal/core/domain"
	"github.com/kirillkom/document-autopilot/internal/core/ports"
)

// Router serves the read-only operations API plus the requeue escape hatch
// for dead-lettered documents. Processing itself never goes through HTTP.
type Router struct {
	ledger    ports.ProcessingLedger
	directory ports.CategoryDirectory
	queue     ports.DiscoveryQueue
}

func NewRouter(ledger ports.ProcessingLedger, directory ports.CategoryDirectory, queue ports.DiscoveryQueue) *Router {
	return &Router{
		ledger:    ledger,
		directory: directory,
		queue:     queue,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/documents", rt.listDocuments)
	mux.HandleFunc("/v1/document", rt.getDocument)
	mux.HandleFunc("/v1/document/requeue", rt.requeueDocument)
	mux.HandleFunc("/v1/categories", rt.listCategories)
	return requestIDMiddleware(accessLogMiddleware(mux))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	stage := domain.Stage(strings.TrimSpace(r.URL.Query().Get("stage")))
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
			return
		}
		limit = parsed
	}

	records, err := rt.ledger.ListRecords(r.Context(), stage, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if records == nil {
		records = []domain.ProcessingRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": records})
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id, ok := identityFromQuery(w, r)
	if !ok {
		return
	}
	rec, err := rt.ledger.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (rt *Router) requeueDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req domain.DocumentIdentity
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.Location == "" || req.Fingerprint == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "location and fingerprint are required"})
		return
	}

	stage, err := rt.ledger.Requeue(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := rt.queue.PublishDiscovered(r.Context(), req); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"document": req,
		"stage":    stage,
	})
}

func (rt *Router) listCategories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	categories, err := rt.directory.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if categories == nil {
		categories = []domain.Category{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

func identityFromQuery(w http.ResponseWriter, r *http.Request) (domain.DocumentIdentity, bool) {
	location := strings.TrimSpace(r.URL.Query().Get("location"))
	fingerprint := strings.TrimSpace(r.URL.Query().Get("fingerprint"))
	if location == "" || fingerprint == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "location and fingerprint query parameters are required"})
		return domain.DocumentIdentity{}, false
	}
	return domain.DocumentIdentity{Location: location, Fingerprint: fingerprint}, true
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
