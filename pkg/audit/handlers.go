package audit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
)

// Handlers provides HTTP handlers for the audit log API
type Handlers struct {
	logger *Logger
}

// NewHandlers creates new audit handlers
func NewHandlers(logger *Logger) *Handlers {
	return &Handlers{
		logger: logger,
	}
}

// RegisterRoutes registers audit log routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/audit/entries", h.listEntries).Methods("GET")
	router.HandleFunc("/audit/export", h.exportEntries).Methods("GET")
	router.HandleFunc("/audit/stats", h.getStats).Methods("GET")
}

// listEntries handles GET /audit/entries
func (h *Handlers) listEntries(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	entries := h.logger.Search(filter)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
		"limit":   filter.Limit,
	})
}

// exportEntries handles GET /audit/export
func (h *Handlers) exportEntries(w http.ResponseWriter, r *http.Request) {
	format := ExportFormat(r.URL.Query().Get("format"))
	if format == "" {
		format = ExportFormatJSON
	}

	data, err := h.logger.Export(format)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	switch format {
	case ExportFormatCSV:
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", "attachment; filename=audit-log.csv")
	case ExportFormatNDJSON:
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Header().Set("Content-Disposition", "attachment; filename=audit-log.ndjson")
	default:
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", "attachment; filename=audit-log.json")
	}

	w.Write(data)
}

// getStats handles GET /audit/stats
func (h *Handlers) getStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.logger.Stats())
}

// parseFilter parses a search filter from query parameters
func parseFilter(r *http.Request) (Filter, error) {
	query := r.URL.Query()
	filter := Filter{Limit: 100}

	if levelStr := query.Get("level"); levelStr != "" {
		level, err := ParseLevel(levelStr)
		if err != nil {
			return Filter{}, err
		}
		filter.MinLevel = level
	}

	filter.Scope = query.Get("scope")

	if sinceStr := query.Get("since"); sinceStr != "" {
		if t, err := time.Parse(time.RFC3339, sinceStr); err == nil {
			filter.Since = t
		}
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	return filter, nil
}
