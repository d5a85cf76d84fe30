package agent

import (
	"errors"
	"fmt"
	"testing"
)

func TestToolErrorClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ToolErrorType
	}{
		{"unknown", fmt.Errorf("%w: x", ErrUnknownTool), ToolErrorUnknownTool},
		{"no session", fmt.Errorf("memory: %w", ErrNoActiveSession), ToolErrorNoSession},
		{"external", ExternalServiceError("resend", errors.New("502")), ToolErrorExternalService},
		{"panic", fmt.Errorf("%w: boom", ErrToolPanic), ToolErrorPanic},
		{"timeout", fmt.Errorf("%w after 1s", ErrToolTimeout), ToolErrorTimeout},
		{"invalid", errors.New("invalid parameters: missing city"), ToolErrorInvalidInput},
		{"handler", errors.New("disk on fire"), ToolErrorHandler},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewToolError("tool", tt.err).Type; got != tt.want {
				t.Fatalf("type = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestToolErrorIsHandlerFailure(t *testing.T) {
	if !errors.Is(NewToolError("t", errors.New("x")), ErrHandlerFailure) {
		t.Fatal("handler errors should match ErrHandlerFailure")
	}
	if errors.Is(NewToolError("t", ErrToolPanic), ErrHandlerFailure) {
		t.Fatal("panics should not match ErrHandlerFailure")
	}
	if !errors.Is(NewToolError("t", ExternalServiceError("numbers", errors.New("down"))), ErrExternalService) {
		t.Fatal("external failures should unwrap to ErrExternalService")
	}
}

func TestToolErrorRender(t *testing.T) {
	if got := NewToolError("launch", fmt.Errorf("%w: launch", ErrUnknownTool)).Render(); got != `Error: unknown tool "launch"` {
		t.Fatalf("render = %q", got)
	}
	if got := NewToolError("storeMemory", ErrNoActiveSession).Render(); got != "Error: no active session for this tool call" {
		t.Fatalf("render = %q", got)
	}
	if got := NewToolError("t", errors.New("bad")).Render(); got != "Error executing t: bad" {
		t.Fatalf("render = %q", got)
	}
}

func TestLoopError(t *testing.T) {
	cause := errors.New("provider down")
	err := &LoopError{Phase: PhaseStream, Step: 2, Cause: cause}
	if !errors.Is(err, cause) {
		t.Fatal("LoopError should unwrap to its cause")
	}
	if err.Error() != "loop error at stream (step 2): provider down" {
		t.Fatalf("Error() = %q", err.Error())
	}
}
