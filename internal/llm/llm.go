package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUpstream marks a provider that was unreachable, failed at the transport
// level, or answered with no usable text.
var ErrUpstream = errors.New("llm upstream failure")

// Gateway prompts a generative text model and returns its raw text.
// Implementations do not retry; retry policy belongs to the caller.
type Gateway interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64) (string, error)
}

// GatewayFunc adapts a plain function to the Gateway interface.
type GatewayFunc func(ctx context.Context, systemPrompt, userPrompt string, temperature float64) (string, error)

func (f GatewayFunc) Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64) (string, error) {
	return f(ctx, systemPrompt, userPrompt, temperature)
}

// FormatError is returned when the model answered but its content could not
// be coerced into the expected JSON shape.
type FormatError struct {
	Raw string
	Err error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("malformed llm response: %v", e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// Upstream wraps err so that errors.Is(err, ErrUpstream) holds.
func Upstream(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUpstream, fmt.Sprintf(format, args...))
}

// StripCodeFences removes a surrounding Markdown code fence (```json ... ```)
// and whitespace from a model response.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop the info string (e.g. "json") up to the first newline.
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		if info := strings.TrimSpace(s[:nl]); !strings.ContainsAny(info, "{[") {
			s = s[nl+1:]
		}
	} else {
		s = strings.TrimPrefix(strings.TrimSpace(s), "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// DecodeJSON strips code fences from raw and unmarshals it into v.
func DecodeJSON(raw string, v any) error {
	clean := StripCodeFences(raw)
	if clean == "" {
		return &FormatError{Raw: raw, Err: errors.New("empty content")}
	}
	if err := json.Unmarshal([]byte(clean), v); err != nil {
		return &FormatError{Raw: raw, Err: err}
	}
	return nil
}
