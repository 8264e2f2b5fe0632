package tasks

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentfleet/agentfleet/internal/a2a"
	"github.com/agentfleet/agentfleet/internal/agentdef"
	"github.com/agentfleet/agentfleet/internal/correlation"
	"github.com/agentfleet/agentfleet/internal/registry"
	"github.com/agentfleet/agentfleet/internal/resilience"
	"github.com/agentfleet/agentfleet/internal/sender"
)

const sendBody = `{"jsonrpc":"2.0","id":7,"method":"message/send","params":{"message":{"role":"user","parts":[{"kind":"text","text":"hello"}],"messageId":"m1"}}}`

type rpcResult struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  *a2a.Task       `json:"result"`
	Error   *a2a.RPCError   `json:"error"`
}

func call(t *testing.T, svc http.Handler, body string) (*httptest.ResponseRecorder, rpcResult) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	svc.ServeHTTP(rec, req)

	var out rpcResult
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestMessageSendCompletesTask(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService("po", Echo{Prefix: "echo: "}, store)
	svc.Clock = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	rec, resp := call(t, svc, sendBody)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, resp.Error)
	assert.JSONEq(t, "7", string(resp.ID))

	task := resp.Result
	require.NotNil(t, task)
	assert.Equal(t, a2a.TaskCompleted, task.Status.State)
	assert.True(t, svc.Clock().Equal(task.Status.Timestamp))
	require.Len(t, task.Artifacts, 1)
	assert.Equal(t, "echo: hello", task.Artifacts[0].Parts[0].Text)
	require.Len(t, task.History, 2)
	assert.Equal(t, "agent", task.History[1].Role)

	stored, err := store.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, a2a.TaskCompleted, stored.Status.State)
}

func TestMessageSendExecutorFailure(t *testing.T) {
	failing := ExecutorFunc(func(context.Context, string) (string, error) {
		return "", errors.New("backend exploded")
	})
	svc := NewService("po", failing, nil)

	_, resp := call(t, svc, sendBody)

	require.NotNil(t, resp.Result)
	assert.Equal(t, a2a.TaskFailed, resp.Result.Status.State)
	require.NotNil(t, resp.Result.Status.Message)
	assert.Equal(t, "backend exploded", resp.Result.Status.Message.Text())
}

func TestMessageSendInvalidParams(t *testing.T) {
	svc := NewService("po", Echo{}, nil)

	_, resp := call(t, svc, `{"jsonrpc":"2.0","id":1,"method":"message/send","params":{"message":{"parts":[]}}}`)

	require.NotNil(t, resp.Error)
	assert.Equal(t, a2a.CodeInvalidParams, resp.Error.Code)
}

func TestTaskGet(t *testing.T) {
	svc := NewService("po", Echo{}, nil)
	_, sent := call(t, svc, sendBody)
	require.NotNil(t, sent.Result)

	_, got := call(t, svc, `{"jsonrpc":"2.0","id":2,"method":"task/get","params":{"id":"`+sent.Result.ID+`"}}`)
	require.NotNil(t, got.Result)
	assert.Equal(t, sent.Result.ID, got.Result.ID)

	_, missing := call(t, svc, `{"jsonrpc":"2.0","id":3,"method":"task/get","params":{"id":"nope"}}`)
	require.NotNil(t, missing.Error)
	assert.Equal(t, a2a.CodeTaskNotFound, missing.Error.Code)
	assert.Equal(t, "Task not found", missing.Error.Message)
}

func TestTaskCancelTerminalTask(t *testing.T) {
	svc := NewService("po", Echo{}, nil)
	_, sent := call(t, svc, sendBody)
	require.NotNil(t, sent.Result)

	_, resp := call(t, svc, `{"jsonrpc":"2.0","id":2,"method":"task/cancel","params":{"id":"`+sent.Result.ID+`"}}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, a2a.CodeTaskNotCancelable, resp.Error.Code)
}

func TestTaskCancelRunningTask(t *testing.T) {
	started := make(chan string, 1)
	blocking := ExecutorFunc(func(ctx context.Context, _ string) (string, error) {
		started <- "started"
		<-ctx.Done()
		return "", ctx.Err()
	})
	store := NewMemoryStore()
	svc := NewService("po", blocking, store)

	done := make(chan rpcResult, 1)
	go func() {
		_, resp := call(t, svc, sendBody)
		done <- resp
	}()
	<-started

	var taskID string
	require.Eventually(t, func() bool {
		svc.mu.Lock()
		defer svc.mu.Unlock()
		for id := range svc.running {
			taskID = id
			return true
		}
		return false
	}, time.Second, 5*time.Millisecond)

	_, canceled := call(t, svc, `{"jsonrpc":"2.0","id":2,"method":"task/cancel","params":{"id":"`+taskID+`"}}`)
	require.Nil(t, canceled.Error)
	assert.Equal(t, a2a.TaskCanceled, canceled.Result.Status.State)

	select {
	case resp := <-done:
		require.NotNil(t, resp.Result)
		assert.Equal(t, a2a.TaskCanceled, resp.Result.Status.State)
	case <-time.After(2 * time.Second):
		t.Fatal("send did not return after cancel")
	}
}

func TestMessageStream(t *testing.T) {
	svc := NewService("po", Echo{}, nil)
	body := strings.Replace(sendBody, "message/send", "message/stream", 1)

	rec, _ := call(t, svc, body)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	var events []map[string]any
	scanner := bufio.NewScanner(rec.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event))
		events = append(events, event)
	}

	require.Len(t, events, 2)
	first := events[0]["result"].(map[string]any)
	assert.Equal(t, "status-update", first["kind"])
	assert.Equal(t, false, first["final"])
	last := events[1]["result"].(map[string]any)
	assert.Equal(t, "task", last["kind"])
	assert.Equal(t, "hello", a2a.ExtractText(last))
}

func TestProtocolErrors(t *testing.T) {
	svc := NewService("po", Echo{}, nil)

	rec, resp := call(t, svc, `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, a2a.CodeParseError, resp.Error.Code)
	assert.JSONEq(t, "null", string(resp.ID))

	_, resp = call(t, svc, `{"jsonrpc":"1.0","id":1,"method":"message/send"}`)
	assert.Equal(t, a2a.CodeInvalidRequest, resp.Error.Code)

	_, resp = call(t, svc, `{"jsonrpc":"2.0","id":1,"method":"admin/delete"}`)
	assert.Equal(t, a2a.CodeMethodNotFound, resp.Error.Code)
}

func TestRelayForwardsCorrelationID(t *testing.T) {
	var gotCID string
	peer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCID = r.Header.Get(correlation.Header)
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"text":"reviewed"}}`))
	}))
	defer peer.Close()

	reg := registry.New()
	reg.Register("reviewer", peer.URL, nil)
	s := sender.New(sender.Options{Registry: reg})

	def := &agentdef.Definition{
		Metadata: agentdef.Metadata{Name: "dev"},
		Executor: agentdef.ExecutorConfig{Kind: agentdef.ExecutorRelay, Target: "reviewer"},
	}
	exec, err := NewExecutor(def, s)
	require.NoError(t, err)

	svc := correlation.Middleware(NewService("dev", exec, nil))
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(sendBody))
	req.Header.Set(correlation.Header, "abc-123")
	rec := httptest.NewRecorder()
	svc.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get(correlation.Header))
	assert.Equal(t, "abc-123", gotCID)

	var resp rpcResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Result)
	assert.Equal(t, "reviewed", resp.Result.Artifacts[0].Parts[0].Text)
}

func TestRelayUndeliveredFailsTask(t *testing.T) {
	s := sender.New(sender.Options{
		Registry: registry.New(),
		Breakers: resilience.NewBreakers(resilience.BreakerConfig{}),
	})
	relay := Relay{Sender: s, Target: "ghost"}

	_, err := relay.Execute(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestNewExecutorRejectsUnknownKind(t *testing.T) {
	_, err := NewExecutor(&agentdef.Definition{Executor: agentdef.ExecutorConfig{Kind: "llm"}}, nil)
	require.Error(t, err)

	exec, err := NewExecutor(&agentdef.Definition{}, nil)
	require.NoError(t, err)
	assert.IsType(t, Echo{}, exec)
}

func TestMemoryStoreCopies(t *testing.T) {
	store := NewMemoryStore()
	task := &a2a.Task{ID: "t1", Artifacts: []a2a.Artifact{{ArtifactID: "a", Parts: []a2a.Part{a2a.TextPart("x")}}}}
	require.NoError(t, store.Save(context.Background(), task))

	task.Artifacts[0].Parts[0].Text = "mutated"

	got, err := store.Get(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "x", got.Artifacts[0].Parts[0].Text)

	_, err = store.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrTaskNotFound)
	require.Error(t, store.Save(context.Background(), &a2a.Task{}))
	assert.Equal(t, 1, store.Len())
}

// gatedStore holds Get calls for one task until gate is closed.
type gatedStore struct {
	*MemoryStore
	mu      sync.Mutex
	holdID  string
	entered chan struct{}
	gate    chan struct{}
}

func (g *gatedStore) hold(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.holdID = id
}

func (g *gatedStore) Get(ctx context.Context, id string) (*a2a.Task, error) {
	g.mu.Lock()
	held := g.holdID == id
	g.holdID = ""
	g.mu.Unlock()
	if held {
		close(g.entered)
		<-g.gate
	}
	return g.MemoryStore.Get(ctx, id)
}

func TestCancelAndCompletionAgreeOnFinalState(t *testing.T) {
	store := &gatedStore{
		MemoryStore: NewMemoryStore(),
		entered:     make(chan struct{}),
		gate:        make(chan struct{}),
	}
	started := make(chan struct{})
	finish := make(chan struct{})
	executor := ExecutorFunc(func(ctx context.Context, text string) (string, error) {
		close(started)
		<-finish
		return "done", nil
	})
	svc := NewService("po", executor, store)

	sent := make(chan rpcResult, 1)
	go func() {
		_, resp := call(t, svc, sendBody)
		sent <- resp
	}()
	<-started

	var taskID string
	require.Eventually(t, func() bool {
		svc.mu.Lock()
		defer svc.mu.Unlock()
		for id := range svc.running {
			taskID = id
			return true
		}
		return false
	}, time.Second, 5*time.Millisecond)

	store.hold(taskID)
	canceled := make(chan rpcResult, 1)
	go func() {
		_, resp := call(t, svc, `{"jsonrpc":"2.0","id":2,"method":"task/cancel","params":{"id":"`+taskID+`"}}`)
		canceled <- resp
	}()
	<-store.entered

	// the executor finishes while task/cancel is between its read and its write
	close(finish)
	time.Sleep(20 * time.Millisecond)
	close(store.gate)

	var sendResp, cancelResp rpcResult
	select {
	case sendResp = <-sent:
	case <-time.After(2 * time.Second):
		t.Fatal("send did not return")
	}
	select {
	case cancelResp = <-canceled:
	case <-time.After(2 * time.Second):
		t.Fatal("cancel did not return")
	}

	stored, err := store.MemoryStore.Get(context.Background(), taskID)
	require.NoError(t, err)
	require.NotNil(t, sendResp.Result)
	assert.Equal(t, stored.Status.State, sendResp.Result.Status.State)

	require.Nil(t, cancelResp.Error)
	assert.Equal(t, a2a.TaskCanceled, cancelResp.Result.Status.State)
	assert.Equal(t, a2a.TaskCanceled, stored.Status.State)
}

func TestCancelAfterCompletionKeepsCompletedState(t *testing.T) {
	svc := NewService("po", Echo{}, nil)
	_, sent := call(t, svc, sendBody)
	require.NotNil(t, sent.Result)
	require.Equal(t, a2a.TaskCompleted, sent.Result.Status.State)

	_, resp := call(t, svc, `{"jsonrpc":"2.0","id":2,"method":"task/cancel","params":{"id":"`+sent.Result.ID+`"}}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, a2a.CodeTaskNotCancelable, resp.Error.Code)
	assert.Equal(t, "Task cannot be canceled", resp.Error.Message)

	_, got := call(t, svc, `{"jsonrpc":"2.0","id":3,"method":"task/get","params":{"id":"`+sent.Result.ID+`"}}`)
	require.NotNil(t, got.Result)
	assert.Equal(t, a2a.TaskCompleted, got.Result.Status.State)
	assert.Len(t, svc.running, 0)
}

func TestCancelOrphanedWorkingTask(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), &a2a.Task{ID: "left-over", Status: a2a.TaskStatus{State: a2a.TaskWorking}}))
	svc := NewService("po", Echo{}, store)

	_, resp := call(t, svc, `{"jsonrpc":"2.0","id":1,"method":"task/cancel","params":{"id":"left-over"}}`)
	require.Nil(t, resp.Error)
	assert.Equal(t, a2a.TaskCanceled, resp.Result.Status.State)
}
