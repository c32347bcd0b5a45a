package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pesio-ai/be-ehs-handlers/internal/errors"
	"github.com/pesio-ai/be-ehs-handlers/internal/logger"
	"github.com/pesio-ai/be-ehs-handlers/internal/orggraph"
	"github.com/pesio-ai/be-ehs-handlers/internal/repository"
	"github.com/pesio-ai/be-ehs-handlers/internal/service"
	"github.com/pesio-ai/be-ehs-handlers/internal/workflow"
)

// HandlerService is the part of service.HandlerService the HTTP layer uses.
type HandlerService interface {
	PreviewStep(ctx context.Context, ref service.RecordRef, stepIndex int) (*workflow.HandlerResult, error)
	PreviewWorkflow(ctx context.Context, ref service.RecordRef) (*workflow.WorkflowResult, error)
	AssignHandlers(ctx context.Context, ref service.RecordRef, stepIndex int) (*workflow.HandlerResult, error)
	PreviewApprovers(ctx context.Context, entityID, permitID, workflowKey string, stepIndex int) ([]orggraph.User, error)
	GetAssignment(ctx context.Context, ref service.RecordRef, stepIndex int) (*repository.StepAssignment, error)
	AuditTrail(ctx context.Context, ref service.RecordRef) ([]*repository.ResolutionAuditEntry, error)
	DefineWorkflow(ctx context.Context, req *service.DefineWorkflowRequest) (*repository.WorkflowDefinition, error)
	ListWorkflows(ctx context.Context, entityID, recordType string, activeOnly bool) ([]*repository.WorkflowDefinition, error)
}

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	service HandlerService
	log     *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(service HandlerService, log *logger.Logger) *HTTPHandler {
	return &HTTPHandler{
		service: service,
		log:     log,
	}
}

// Register mounts the API routes on mux.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/handlers/preview", h.PreviewHandlers)
	mux.HandleFunc("/api/v1/handlers/assign", h.AssignHandlers)
	mux.HandleFunc("/api/v1/handlers/assignment", h.GetAssignment)
	mux.HandleFunc("/api/v1/handlers/audit", h.AuditTrail)
	mux.HandleFunc("/api/v1/approvers/preview", h.PreviewApprovers)
	mux.HandleFunc("/api/v1/workflows", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.ListWorkflows(w, r)
		case http.MethodPost:
			h.DefineWorkflow(w, r)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	})
}

// PreviewHandlers resolves one step, or the whole workflow when step is
// omitted.
func (h *HTTPHandler) PreviewHandlers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	ref := recordRef(q)

	if q.Get("step") == "" {
		res, err := h.service.PreviewWorkflow(r.Context(), ref)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
		return
	}

	step, err := strconv.Atoi(q.Get("step"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "step must be an integer")
		return
	}
	res, err := h.service.PreviewStep(r.Context(), ref, step)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// AssignRequest is the body of POST /api/v1/handlers/assign. A missing step
// means the record's current step.
type AssignRequest struct {
	service.RecordRef
	Step *int `json:"step,omitempty"`
}

// AssignHandlers resolves a step and stores its candidate handlers.
func (h *HTTPHandler) AssignHandlers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req AssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	step := -1
	if req.Step != nil {
		step = *req.Step
	}

	res, err := h.service.AssignHandlers(r.Context(), req.RecordRef, step)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// PreviewApprovers lists a permit step's approvers.
func (h *HTTPHandler) PreviewApprovers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	step := -1
	if s := q.Get("step"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "step must be an integer")
			return
		}
		step = n
	}

	users, err := h.service.PreviewApprovers(r.Context(), q.Get("entity_id"), q.Get("record_id"), q.Get("workflow"), step)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

// GetAssignment returns the stored candidates of a record's step.
func (h *HTTPHandler) GetAssignment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	step, err := strconv.Atoi(q.Get("step"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "step must be an integer")
		return
	}

	a, err := h.service.GetAssignment(r.Context(), recordRef(q), step)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// AuditTrail returns a record's resolution history.
func (h *HTTPHandler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	entries, err := h.service.AuditTrail(r.Context(), recordRef(r.URL.Query()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// DefineWorkflow stores a new workflow version.
func (h *HTTPHandler) DefineWorkflow(w http.ResponseWriter, r *http.Request) {
	var req service.DefineWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body: " + err.Error(), Code: string(errors.ErrCodeInvalidInput)})
		return
	}

	def, err := h.service.DefineWorkflow(r.Context(), &req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, def)
}

// ListWorkflows lists workflow definitions.
func (h *HTTPHandler) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	activeOnly := q.Get("active_only") != "false"

	defs, err := h.service.ListWorkflows(r.Context(), q.Get("entity_id"), q.Get("record_type"), activeOnly)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"workflows": defs})
}

// Health reports liveness.
func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func recordRef(q url.Values) service.RecordRef {
	return service.RecordRef{
		EntityID:    q.Get("entity_id"),
		RecordType:  q.Get("record_type"),
		RecordID:    q.Get("record_id"),
		WorkflowKey: q.Get("workflow"),
	}
}

func (h *HTTPHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := errors.CodeOf(err)
	status := errors.HTTPStatus(code)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).
			Str("request_id", logger.RequestIDFromContext(r.Context())).
			Str("path", r.URL.Path).
			Msg("Request failed")
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Code: string(code)})
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
