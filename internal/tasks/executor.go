package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/agentfleet/agentfleet/internal/agentdef"
	"github.com/agentfleet/agentfleet/internal/sender"
)

// Executor produces an agent's answer to an inbound message.
type Executor interface {
	Execute(ctx context.Context, text string) (string, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, text string) (string, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, text string) (string, error) {
	return f(ctx, text)
}

// Echo replies with Prefix followed by the received text.
type Echo struct {
	Prefix string
}

// Execute implements Executor.
func (e Echo) Execute(ctx context.Context, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return e.Prefix + text, nil
}

// Relay forwards the received text to Target and answers with its reply.
type Relay struct {
	Sender *sender.Sender
	Target string
	Prefix string
}

// Execute implements Executor. Undelivered sends fail the task with the
// sender's explanation.
func (r Relay) Execute(ctx context.Context, text string) (string, error) {
	if r.Sender == nil {
		return "", errors.New("relay executor has no sender")
	}
	reply := r.Sender.Send(ctx, r.Target, text)
	if !reply.Delivered() {
		return "", errors.New(reply.Text)
	}
	return r.Prefix + reply.Text, nil
}

// NewExecutor builds the executor a definition asks for.
func NewExecutor(def *agentdef.Definition, s *sender.Sender) (Executor, error) {
	if def == nil {
		return nil, errors.New("agent definition is required")
	}
	switch def.Executor.Kind {
	case agentdef.ExecutorEcho, "":
		return Echo{Prefix: def.Executor.Prefix}, nil
	case agentdef.ExecutorRelay:
		return Relay{Sender: s, Target: def.Executor.Target, Prefix: def.Executor.Prefix}, nil
	default:
		return nil, fmt.Errorf("unsupported executor kind: %s", def.Executor.Kind)
	}
}
