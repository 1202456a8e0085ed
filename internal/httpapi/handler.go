package httpapi

import (
	"net/http"
	"strings"

	"github.com/aglm/taskqueue/internal/broker"
	"github.com/aglm/taskqueue/internal/queuepayload"
	"github.com/aglm/taskqueue/internal/queueservice"
	"github.com/aglm/taskqueue/internal/shared/logging"
	"github.com/aglm/taskqueue/internal/task"
)

const maxTaskEventLimit = 20

// Handler serves the five endpoints spec.md §6 names. It depends only on
// queueservice.Service, the task.Store and the raw broker client (for the
// durable-row and live-hash reads GET /task/{id} needs), never on net/http
// framework extras the teacher's
// gin dependency would have pulled in — confirmed unused in the teacher's
// own handlers, so net/http.ServeMux is the grounded choice here too.
type Handler struct {
	svc    *queueservice.Service
	store  task.Store
	broker *broker.Client
	prefix string
	logger logging.Logger
}

// New builds a Handler. logger may be nil.
func New(svc *queueservice.Service, store task.Store, b *broker.Client, keyPrefix string, logger logging.Logger) *Handler {
	return &Handler{
		svc:    svc,
		store:  store,
		broker: b,
		prefix: keyPrefix,
		logger: logging.OrNop(logger),
	}
}

// Router builds the http.Handler for all five endpoints, using Go 1.22+
// method-specific ServeMux patterns per the teacher's router.go.
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /enqueue", h.handleEnqueue)
	mux.HandleFunc("POST /webhook", h.handleEnqueue) // true alias, spec.md §6
	mux.HandleFunc("POST /finish", h.handleFinish)
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /task/{task_id}", h.handleGetTask)
	return mux
}

type enqueueRequest struct {
	User       string   `json:"user"`
	Content    string   `json:"content"`
	TaskType   string   `json:"task_type,omitempty"`
	ScriptArgs []string `json:"script_args,omitempty"`
}

type intentResponse struct {
	Intent   string `json:"intent"`
	Workflow string `json:"workflow"`
}

type enqueueResponse struct {
	Status      string         `json:"status"`
	TaskID      string         `json:"task_id,omitempty"`
	QueueLength int64          `json:"queue_length,omitempty"`
	Intent      intentResponse `json:"intent,omitzero"`
	TaskType    string         `json:"task_type,omitempty"`
	Msg         string         `json:"msg,omitempty"`
}

func (h *Handler) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.User) == "" {
		writeJSON(w, http.StatusBadRequest, enqueueResponse{Status: "error", Msg: "user is required"})
		return
	}

	taskID, queueLength, resolved, err := h.svc.Enqueue(r.Context(), req.User, req.Content, req.TaskType, req.ScriptArgs)
	if err != nil {
		h.logger.Error("enqueue failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, enqueueResponse{Status: "error", Msg: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, enqueueResponse{
		Status:      "accepted",
		TaskID:      taskID,
		QueueLength: queueLength,
		Intent:      intentResponse{Intent: resolved.Intent, Workflow: resolved.Workflow},
		TaskType:    req.TaskType,
	})
}

type finishRequest struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
	Result string `json:"result,omitempty"`
	User   string `json:"user,omitempty"`
	Notify *bool  `json:"notify,omitempty"`
}

type finishResponse struct {
	Status string `json:"status"`
	TaskID string `json:"task_id,omitempty"`
	Msg    string `json:"msg,omitempty"`
}

func (h *Handler) handleFinish(w http.ResponseWriter, r *http.Request) {
	var req finishRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.TaskID) == "" {
		writeJSON(w, http.StatusBadRequest, finishResponse{Status: "error", Msg: "task_id is required"})
		return
	}

	status := task.Status(req.Status)
	if status != task.StatusSuccess && status != task.StatusFailed {
		writeJSON(w, http.StatusBadRequest, finishResponse{Status: "error", Msg: "status must be success or failed"})
		return
	}

	notify := true
	if req.Notify != nil {
		notify = *req.Notify
	}

	payload := queuepayload.Payload{ID: req.TaskID, User: req.User}
	if err := h.svc.Finalize(r.Context(), payload, status, req.Result, notify); err != nil {
		h.logger.Error("finish failed for task %s: %v", req.TaskID, err)
		writeJSON(w, http.StatusInternalServerError, finishResponse{Status: "error", Msg: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, finishResponse{Status: "ok", TaskID: req.TaskID})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type taskSummary struct {
	TaskID         string  `json:"task_id"`
	Status         string  `json:"status"`
	User           string  `json:"user"`
	Type           string  `json:"type"`
	Workflow       string  `json:"workflow"`
	Result         string  `json:"result"`
	CreatedAt      float64 `json:"created_at"`
	UpdatedAt      float64 `json:"updated_at"`
	ResumeHint     string  `json:"resume_hint"`
	LastCheckpoint string  `json:"last_checkpoint"`
}

type eventSummary struct {
	Phase     string  `json:"phase"`
	Status    string  `json:"status"`
	Input     string  `json:"input,omitempty"`
	Output    string  `json:"output,omitempty"`
	CreatedAt float64 `json:"created_at"`
}

type getTaskResponse struct {
	Task   taskSummary    `json:"task"`
	Events []eventSummary `json:"events"`
}

// handleGetTask implements the dual-view merge spec.md §6 requires: status
// and result prefer the broker-side live hash (low latency), falling back
// to the durable row (authoritative once the worker has finalized).
func (h *Handler) handleGetTask(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("task_id")
	if taskID == "" {
		writeJSONError(w, http.StatusBadRequest, "task_id is required")
		return
	}

	row, err := h.store.LoadTask(r.Context(), taskID)
	if err != nil {
		h.logger.Error("load task %s failed: %v", taskID, err)
		writeJSONError(w, http.StatusInternalServerError, "failed to load task")
		return
	}
	if row == nil {
		writeJSONError(w, http.StatusNotFound, "task not found")
		return
	}

	summary := taskSummary{
		TaskID:         row.ID,
		Status:         string(row.Status),
		User:           row.User,
		Type:           row.Type,
		Workflow:       row.Type,
		Result:         row.ResultSummary,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
		ResumeHint:     row.ResumeHint,
		LastCheckpoint: row.LastCheckpoint,
	}
	h.mergeLiveStatus(taskID, &summary)

	events, err := h.store.QueryEvents(r.Context(), taskID, maxTaskEventLimit)
	if err != nil {
		h.logger.Error("query events for %s failed: %v", taskID, err)
		writeJSONError(w, http.StatusInternalServerError, "failed to load events")
		return
	}
	eventSummaries := make([]eventSummary, 0, len(events))
	for _, e := range events {
		eventSummaries = append(eventSummaries, eventSummary{
			Phase:     e.Phase,
			Status:    string(e.Status),
			Input:     e.Input,
			Output:    e.Output,
			CreatedAt: e.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, getTaskResponse{Task: summary, Events: eventSummaries})
}

func (h *Handler) mergeLiveStatus(taskID string, summary *taskSummary) {
	liveKey := h.prefix + ":" + taskID
	if v, err := h.broker.HGet(liveKey, "status"); err == nil && v != "" {
		summary.Status = v
	}
	if v, err := h.broker.HGet(liveKey, "final_result"); err == nil && v != "" {
		summary.Result = v
	}
	if v, err := h.broker.HGet(liveKey, "workflow"); err == nil && v != "" {
		summary.Workflow = v
	}
}

