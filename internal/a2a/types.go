// Package a2a holds the JSON-RPC wire types spoken between agents and the
// HTTP client used for outbound calls.
package a2a

import (
	"encoding/json"
	"fmt"
	"time"
)

// Version is the only accepted JSON-RPC protocol version.
const Version = "2.0"

// Supported methods.
const (
	MethodSend   = "message/send"
	MethodStream = "message/stream"
	MethodGet    = "task/get"
	MethodCancel = "task/cancel"
)

// SupportedMethods is the method whitelist enforced on inbound requests.
var SupportedMethods = map[string]bool{
	MethodSend:   true,
	MethodStream: true,
	MethodGet:    true,
	MethodCancel: true,
}

// JSON-RPC error codes.
const (
	CodeParseError        = -32700
	CodeInvalidRequest    = -32600
	CodeMethodNotFound    = -32601
	CodeInvalidParams     = -32602
	CodeInternalError     = -32603
	CodeTaskNotFound      = -32001
	CodeTaskNotCancelable = -32002
)

// Request is a JSON-RPC request. ID is kept raw so it can be echoed verbatim.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC response carrying either Result or Error.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC error object. It is also returned as a Go error when
// a peer answers with one.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("json-rpc error %d: %s", e.Code, e.Message)
}

// Part is one segment of a message or artifact.
type Part struct {
	Kind string `json:"kind"`
	Text string `json:"text,omitempty"`
}

// TextPart builds a text part.
func TextPart(text string) Part {
	return Part{Kind: "text", Text: text}
}

// Message is a single conversational turn.
type Message struct {
	Kind      string `json:"kind,omitempty"`
	Role      string `json:"role"`
	Parts     []Part `json:"parts"`
	MessageID string `json:"messageId"`
	ContextID string `json:"contextId,omitempty"`
	TaskID    string `json:"taskId,omitempty"`
}

// Text joins the text of every text part with newlines.
func (m Message) Text() string {
	var out string
	for i, part := range m.Parts {
		if i > 0 {
			out += "\n"
		}
		out += part.Text
	}
	return out
}

// MessageParams are the params of message/send and message/stream.
type MessageParams struct {
	Message Message `json:"message"`
}

// TaskIDParams are the params of task/get and task/cancel.
type TaskIDParams struct {
	ID string `json:"id"`
}

// TaskState is the lifecycle state of a task.
type TaskState string

const (
	TaskSubmitted TaskState = "submitted"
	TaskWorking   TaskState = "working"
	TaskCompleted TaskState = "completed"
	TaskFailed    TaskState = "failed"
	TaskCanceled  TaskState = "canceled"
)

// Terminal reports whether no further transitions are possible.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskCanceled:
		return true
	default:
		return false
	}
}

// TaskStatus is the current state of a task.
type TaskStatus struct {
	State     TaskState `json:"state"`
	Message   *Message  `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Artifact is an output produced by a task.
type Artifact struct {
	ArtifactID string `json:"artifactId"`
	Parts      []Part `json:"parts"`
}

// Task is the unit of work created by message/send.
type Task struct {
	Kind      string     `json:"kind"`
	ID        string     `json:"id"`
	ContextID string     `json:"contextId"`
	Status    TaskStatus `json:"status"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
	History   []Message  `json:"history,omitempty"`
}

// StatusUpdateEvent is streamed by message/stream before the final task.
type StatusUpdateEvent struct {
	Kind      string     `json:"kind"`
	TaskID    string     `json:"taskId"`
	ContextID string     `json:"contextId"`
	Status    TaskStatus `json:"status"`
	Final     bool       `json:"final"`
}

// AgentCard is the discovery document served at /.well-known/agent.json.
type AgentCard struct {
	Name               string       `json:"name"`
	Description        string       `json:"description"`
	URL                string       `json:"url"`
	Version            string       `json:"version"`
	Skills             []AgentSkill `json:"skills"`
	Capabilities       Capabilities `json:"capabilities"`
	DefaultInputModes  []string     `json:"defaultInputModes"`
	DefaultOutputModes []string     `json:"defaultOutputModes"`
}

// AgentSkill describes one skill on the card.
type AgentSkill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// Capabilities are the optional protocol features an agent supports.
type Capabilities struct {
	Streaming bool `json:"streaming"`
}
