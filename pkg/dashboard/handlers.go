package dashboard

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/waypoint/pkg/contextkeys"
	"github.com/platinummonkey/waypoint/pkg/httputil"
	"github.com/platinummonkey/waypoint/pkg/modules"
	"github.com/platinummonkey/waypoint/pkg/rbac"
)

// Handlers provides HTTP handlers for dashboard sessions. The acting user
// is read from the request context.
type Handlers struct {
	shell *Shell
}

// NewHandlers creates new dashboard handlers
func NewHandlers(shell *Shell) *Handlers {
	return &Handlers{shell: shell}
}

// RegisterRoutes registers the session routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/session", h.Initialize).Methods("POST")
	router.HandleFunc("/session", h.EndSession).Methods("DELETE")
	router.HandleFunc("/session", h.GetSession).Methods("GET")
	router.HandleFunc("/session/sections/{section}", h.LoadSection).Methods("GET")
	router.HandleFunc("/session/actions/{action}", h.ExecuteAction).Methods("POST")
	router.HandleFunc("/session/stats", h.Stats).Methods("GET")
}

// InitializeRequest is the body of POST /session. Department defaults to
// the actor's own.
type InitializeRequest struct {
	Department rbac.Department `json:"department,omitempty"`
	Async      bool            `json:"async,omitempty"`
}

// Initialize opens the actor's dashboard
func (h *Handlers) Initialize(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req InitializeRequest
	if err := httputil.ParseOptionalJSON(r, &req); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if req.Department == "" {
		req.Department = rbac.Department(contextkeys.GetDepartment(r.Context()))
	}

	if req.Async {
		m, err := h.shell.InitializeAsync(r.Context(), req.Department, actor)
		if err != nil {
			httputil.WriteAppError(w, r, err)
			return
		}
		httputil.WriteJSON(w, http.StatusAccepted, m.Info())
		return
	}

	m, err := h.shell.Initialize(r.Context(), req.Department, actor)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteCreated(w, m.Info())
}

// GetSession describes the actor's open module
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	m, ok := h.session(w, r)
	if !ok {
		return
	}
	httputil.WriteSuccess(w, m.Info())
}

// EndSession closes the actor's dashboard
func (h *Handlers) EndSession(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if !h.shell.EndSession(actor) {
		httputil.WriteAppError(w, r, fmt.Errorf("%w: no open session for %s", modules.ErrModuleNotInitialized, actor))
		return
	}
	httputil.WriteNoContent(w)
}

// LoadSection returns the data of one dashboard section
func (h *Handlers) LoadSection(w http.ResponseWriter, r *http.Request) {
	m, ok := h.session(w, r)
	if !ok {
		return
	}
	section := mux.Vars(r)["section"]

	data, err := h.shell.LoadSectionData(r.Context(), m, section)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"section": section,
		"data":    data,
	})
}

// ExecuteAction runs a module action with the JSON body as its payload
func (h *Handlers) ExecuteAction(w http.ResponseWriter, r *http.Request) {
	m, ok := h.session(w, r)
	if !ok {
		return
	}
	var payload modules.Payload
	if err := httputil.ParseOptionalJSON(r, &payload); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	action := mux.Vars(r)["action"]

	out, err := h.shell.ExecuteAction(r.Context(), m, action, payload)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"action": action,
		"result": out,
	})
}

// Stats returns session, bus and audit statistics
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	m, _ := h.shell.Session(actor)
	httputil.WriteSuccess(w, h.shell.Stats(m))
}

func (h *Handlers) session(w http.ResponseWriter, r *http.Request) (*modules.Module, bool) {
	actor, ok := requireActor(w, r)
	if !ok {
		return nil, false
	}
	m, found := h.shell.Session(actor)
	if !found {
		httputil.WriteAppError(w, r, fmt.Errorf("%w: no open session for %s", modules.ErrModuleNotInitialized, actor))
		return nil, false
	}
	return m, true
}

func requireActor(w http.ResponseWriter, r *http.Request) (string, bool) {
	actor := contextkeys.GetUserID(r.Context())
	if actor == "" {
		httputil.WriteUnauthorized(w, "authentication required")
		return "", false
	}
	return actor, true
}
