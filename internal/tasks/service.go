// Package tasks runs inbound JSON-RPC messages through an agent's executor
// and tracks the resulting tasks.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentfleet/agentfleet/internal/a2a"
	"github.com/agentfleet/agentfleet/internal/correlation"
	apperrors "github.com/agentfleet/agentfleet/internal/errors"
	"github.com/agentfleet/agentfleet/internal/metrics"
	"github.com/agentfleet/agentfleet/internal/observability"
)

// Service answers the JSON-RPC methods of one agent.
type Service struct {
	agent    string
	executor Executor
	store    Store

	// Clock stamps task status changes.
	Clock func() time.Time

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// NewService creates a service. A nil store uses a MemoryStore.
func NewService(agent string, executor Executor, store Store) *Service {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Service{
		agent:    agent,
		executor: executor,
		store:    store,
		running:  make(map[string]context.CancelFunc),
	}
}

// rpcError is a JSON-RPC failure produced while dispatching a method.
type rpcError struct {
	status  int
	code    int
	message string
}

func (e *rpcError) Error() string {
	return e.message
}

func invalidParams(msg string) *rpcError {
	return &rpcError{status: http.StatusOK, code: a2a.CodeInvalidParams, message: "Invalid params: " + msg}
}

// ServeHTTP handles a single JSON-RPC request.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		apperrors.RespondRPCError(w, r, http.StatusBadRequest, nil, a2a.CodeParseError, "Parse error")
		return
	}

	var req a2a.Request
	if err := json.Unmarshal(body, &req); err != nil {
		apperrors.RespondRPCError(w, r, http.StatusBadRequest, nil, a2a.CodeParseError, "Parse error")
		return
	}
	if req.JSONRPC != a2a.Version {
		apperrors.RespondRPCError(w, r, http.StatusBadRequest, req.ID, a2a.CodeInvalidRequest, "Invalid Request: missing jsonrpc 2.0")
		return
	}

	var result any
	switch req.Method {
	case a2a.MethodSend:
		result, err = s.handleSend(r.Context(), req.Params)
	case a2a.MethodStream:
		s.handleStream(w, r, req)
		return
	case a2a.MethodGet:
		result, err = s.handleGet(r.Context(), req.Params)
	case a2a.MethodCancel:
		result, err = s.handleCancel(r.Context(), req.Params)
	default:
		apperrors.RespondRPCError(w, r, http.StatusBadRequest, req.ID, a2a.CodeMethodNotFound, "Method not found: "+req.Method)
		return
	}

	if err != nil {
		var rerr *rpcError
		if !errors.As(err, &rerr) {
			rerr = &rpcError{status: http.StatusInternalServerError, code: a2a.CodeInternalError, message: "Internal error: " + err.Error()}
		}
		apperrors.RespondRPCError(w, r, rerr.status, req.ID, rerr.code, rerr.message)
		return
	}

	writeResult(w, req.ID, result)
}

func (s *Service) handleSend(ctx context.Context, raw json.RawMessage) (*a2a.Task, error) {
	msg, err := decodeMessage(raw)
	if err != nil {
		return nil, err
	}
	task, execCtx, err := s.start(ctx, msg)
	if err != nil {
		return nil, err
	}
	return s.run(execCtx, task, msg)
}

func (s *Service) handleStream(w http.ResponseWriter, r *http.Request, req a2a.Request) {
	msg, err := decodeMessage(req.Params)
	if err != nil {
		var rerr *rpcError
		errors.As(err, &rerr)
		apperrors.RespondRPCError(w, r, rerr.status, req.ID, rerr.code, rerr.message)
		return
	}

	task, execCtx, err := s.start(r.Context(), msg)
	if err != nil {
		apperrors.RespondRPCError(w, r, http.StatusInternalServerError, req.ID, a2a.CodeInternalError, "Internal error: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeEvent(w, req.ID, a2a.StatusUpdateEvent{
		Kind:      "status-update",
		TaskID:    task.ID,
		ContextID: task.ContextID,
		Status:    task.Status,
		Final:     false,
	})

	final, err := s.run(execCtx, task, msg)
	if err != nil {
		writeEvent(w, req.ID, nil, &a2a.RPCError{Code: a2a.CodeInternalError, Message: err.Error()})
		return
	}
	writeEvent(w, req.ID, final)
}

func (s *Service) handleGet(ctx context.Context, raw json.RawMessage) (*a2a.Task, error) {
	id, err := decodeTaskID(raw)
	if err != nil {
		return nil, err
	}
	return s.lookup(ctx, id)
}

// handleCancel stops a running task. The running map and the store are
// updated under s.mu so a task that run has already finished is never
// overwritten as canceled.
func (s *Service) handleCancel(ctx context.Context, raw json.RawMessage) (*a2a.Task, error) {
	id, err := decodeTaskID(raw)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.Status.State.Terminal() {
		return nil, &rpcError{status: http.StatusOK, code: a2a.CodeTaskNotCancelable, message: "Task cannot be canceled"}
	}

	// a non-terminal task missing from running was left behind by an
	// earlier process; it is marked canceled the same way
	if cancel, ok := s.running[id]; ok {
		delete(s.running, id)
		cancel()
	}

	task.Status = a2a.TaskStatus{State: a2a.TaskCanceled, Timestamp: s.now()}
	if err := s.store.Save(ctx, task); err != nil {
		return nil, err
	}
	s.logTask(ctx, task)
	return task, nil
}

func (s *Service) lookup(ctx context.Context, id string) (*a2a.Task, error) {
	task, err := s.store.Get(ctx, id)
	if errors.Is(err, ErrTaskNotFound) {
		return nil, &rpcError{status: http.StatusOK, code: a2a.CodeTaskNotFound, message: "Task not found"}
	}
	return task, err
}

// start records a new working task for msg and registers it as running.
// The returned context ends when the request ends or task/cancel is called.
func (s *Service) start(ctx context.Context, msg a2a.Message) (*a2a.Task, context.Context, error) {
	contextID := msg.ContextID
	if contextID == "" {
		contextID = uuid.New().String()
	}
	task := &a2a.Task{
		Kind:      "task",
		ID:        uuid.New().String(),
		ContextID: contextID,
		Status:    a2a.TaskStatus{State: a2a.TaskWorking, Timestamp: s.now()},
		History:   []a2a.Message{msg},
	}

	execCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Save(ctx, task); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("save task: %w", err)
	}
	s.running[task.ID] = cancel
	return task, execCtx, nil
}

// run executes msg and stores the terminal task unless task/cancel got to
// it first, in which case the stored canceled task is returned.
func (s *Service) run(execCtx context.Context, task *a2a.Task, msg a2a.Message) (*a2a.Task, error) {
	output, err := s.executor.Execute(execCtx, msg.Text())

	// the request may already be gone; the outcome is still recorded
	storeCtx := context.WithoutCancel(execCtx)

	s.mu.Lock()
	defer s.mu.Unlock()

	cancel, ok := s.running[task.ID]
	if !ok {
		return s.store.Get(storeCtx, task.ID)
	}
	delete(s.running, task.ID)
	defer cancel()

	switch {
	case err == nil:
		reply := a2a.Message{
			Kind:      "message",
			Role:      "agent",
			Parts:     []a2a.Part{a2a.TextPart(output)},
			MessageID: uuid.New().String(),
			ContextID: task.ContextID,
			TaskID:    task.ID,
		}
		task.Status = a2a.TaskStatus{State: a2a.TaskCompleted, Timestamp: s.now()}
		task.Artifacts = []a2a.Artifact{{ArtifactID: uuid.New().String(), Parts: reply.Parts}}
		task.History = append(task.History, reply)
	case execCtx.Err() != nil:
		task.Status = a2a.TaskStatus{State: a2a.TaskCanceled, Timestamp: s.now()}
	default:
		task.Status = a2a.TaskStatus{
			State: a2a.TaskFailed,
			Message: &a2a.Message{
				Kind:      "message",
				Role:      "agent",
				Parts:     []a2a.Part{a2a.TextPart(err.Error())},
				MessageID: uuid.New().String(),
				ContextID: task.ContextID,
				TaskID:    task.ID,
			},
			Timestamp: s.now(),
		}
	}

	if err := s.store.Save(storeCtx, task); err != nil {
		return nil, fmt.Errorf("save task: %w", err)
	}
	s.logTask(execCtx, task)
	return task, nil
}

func (s *Service) logTask(ctx context.Context, task *a2a.Task) {
	metrics.RecordTask(s.agent, string(task.Status.State))
	logger := observability.Logger()
	if logger == nil {
		return
	}
	fields := []zap.Field{
		zap.String("agent", s.agent),
		zap.String("task_id", task.ID),
		zap.String("state", string(task.Status.State)),
		zap.String("correlation_id", correlation.FromContext(ctx)),
	}
	if task.Status.State == a2a.TaskFailed {
		logger.Warn("Task failed", fields...)
		return
	}
	logger.Info("Task finished", fields...)
}

func (s *Service) now() time.Time {
	if s.Clock != nil {
		return s.Clock().UTC()
	}
	return time.Now().UTC()
}

func decodeMessage(raw json.RawMessage) (a2a.Message, error) {
	var params a2a.MessageParams
	if len(raw) == 0 {
		return a2a.Message{}, invalidParams("message is required")
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return a2a.Message{}, invalidParams(err.Error())
	}
	if len(params.Message.Parts) == 0 {
		return a2a.Message{}, invalidParams("message has no parts")
	}
	if params.Message.Role == "" {
		params.Message.Role = "user"
	}
	if params.Message.MessageID == "" {
		params.Message.MessageID = uuid.New().String()
	}
	return params.Message, nil
}

func decodeTaskID(raw json.RawMessage) (string, error) {
	var params a2a.TaskIDParams
	if len(raw) == 0 {
		return "", invalidParams("id is required")
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return "", invalidParams(err.Error())
	}
	if strings.TrimSpace(params.ID) == "" {
		return "", invalidParams("id is required")
	}
	return params.ID, nil
}

func writeResult(w http.ResponseWriter, id json.RawMessage, result any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(a2a.Response{JSONRPC: a2a.Version, ID: nullID(id), Result: result})
}

func writeEvent(w http.ResponseWriter, id json.RawMessage, result any, rpcErr ...*a2a.RPCError) {
	resp := a2a.Response{JSONRPC: a2a.Version, ID: nullID(id), Result: result}
	if len(rpcErr) > 0 {
		resp.Error = rpcErr[0]
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}

func nullID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}
