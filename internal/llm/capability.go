package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrCapabilityUnavailable is matched by every error a Capability returns.
// Callers use it to switch to their deterministic fallback.
var ErrCapabilityUnavailable = errors.New("reasoning capability unavailable")

// CapabilityError wraps a provider failure.
type CapabilityError struct {
	Op    string
	Cause error
}

func (e *CapabilityError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("capability %s: %v", e.Op, e.Cause)
	}
	return fmt.Sprintf("capability %s: unavailable", e.Op)
}

func (e *CapabilityError) Unwrap() error {
	return e.Cause
}

// Is makes errors.Is(err, ErrCapabilityUnavailable) hold for every CapabilityError.
func (e *CapabilityError) Is(target error) bool {
	return target == ErrCapabilityUnavailable
}

// Capability is the narrow completion interface the pipeline stages depend on.
type Capability interface {
	Complete(ctx context.Context, prompt string, tier ModelTier) (string, error)
	CompleteJSON(ctx context.Context, prompt string, tier ModelTier) (string, error)
}

// NewCapability adapts a Client. A nil client yields a capability that is
// always unavailable.
func NewCapability(client Client, config *Config) Capability {
	if client == nil {
		return Unavailable{}
	}
	if config == nil {
		config = DefaultConfig()
	}
	return &clientCapability{client: client, timeout: config.CallTimeout}
}

type clientCapability struct {
	client  Client
	timeout time.Duration
}

func (c *clientCapability) Complete(ctx context.Context, prompt string, tier ModelTier) (string, error) {
	return c.call(ctx, "complete", func(ctx context.Context) (string, error) {
		return c.client.GenerateContent(ctx, prompt, tier)
	})
}

func (c *clientCapability) CompleteJSON(ctx context.Context, prompt string, tier ModelTier) (string, error) {
	return c.call(ctx, "complete_json", func(ctx context.Context) (string, error) {
		out, err := c.client.GenerateJSON(ctx, prompt, tier)
		if err != nil {
			return "", err
		}
		return CleanJSONBlock(out), nil
	})
}

func (c *clientCapability) call(ctx context.Context, op string, fn func(context.Context) (string, error)) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	out, err := fn(ctx)
	if err != nil {
		return "", &CapabilityError{Op: op, Cause: err}
	}
	if out == "" {
		return "", &CapabilityError{Op: op, Cause: errors.New("empty response")}
	}
	return out, nil
}

// Unavailable is a Capability that always fails. It stands in when no API
// key is configured.
type Unavailable struct{}

func (Unavailable) Complete(context.Context, string, ModelTier) (string, error) {
	return "", &CapabilityError{Op: "complete"}
}

func (Unavailable) CompleteJSON(context.Context, string, ModelTier) (string, error) {
	return "", &CapabilityError{Op: "complete_json"}
}

// OrUnavailable returns c, or Unavailable when c is nil.
func OrUnavailable(c Capability) Capability {
	if c == nil {
		return Unavailable{}
	}
	return c
}

// Available reports whether c can make calls at all.
func Available(c Capability) bool {
	if c == nil {
		return false
	}
	_, unavailable := c.(Unavailable)
	return !unavailable
}
