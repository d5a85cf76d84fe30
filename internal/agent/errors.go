package agent

import (
	"errors"
	"fmt"
	"strings"
)

// Common sentinel errors for agent operations
var (
	// ErrNoActiveSession indicates CurrentSession was called outside WithSession.
	ErrNoActiveSession = errors.New("no active session")

	// ErrUnknownTool indicates the model referenced a tool missing from the registry.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrHandlerFailure marks a failure raised by a tool's own logic.
	ErrHandlerFailure = errors.New("tool handler failed")

	// ErrExternalService marks a failure talking to a remote dependency
	// (email delivery, number facts, MCP servers).
	ErrExternalService = errors.New("external service failure")

	// ErrToolPanic indicates a tool panicked during execution
	ErrToolPanic = errors.New("tool panicked")

	// ErrToolTimeout indicates a tool execution timed out
	ErrToolTimeout = errors.New("tool execution timed out")

	// ErrNoProvider indicates no LLM provider is configured
	ErrNoProvider = errors.New("no provider configured")

	// ErrMissingCredential indicates required configuration is absent.
	ErrMissingCredential = errors.New("missing credential")
)

// ExternalServiceError wraps err so that errors.Is(err, ErrExternalService) holds.
func ExternalServiceError(service string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", service, ErrExternalService, err)
}

// ToolErrorType categorizes tool execution errors.
type ToolErrorType string

const (
	ToolErrorUnknownTool     ToolErrorType = "unknown_tool"
	ToolErrorInvalidInput    ToolErrorType = "invalid_input"
	ToolErrorNoSession       ToolErrorType = "no_active_session"
	ToolErrorHandler         ToolErrorType = "handler_failure"
	ToolErrorExternalService ToolErrorType = "external_service"
	ToolErrorTimeout         ToolErrorType = "timeout"
	ToolErrorPanic           ToolErrorType = "panic"
)

// ToolError represents a structured error from tool execution.
type ToolError struct {
	Type       ToolErrorType
	ToolName   string
	ToolCallID string
	Message    string
	Cause      error
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("[tool:%s]", e.Type))

	if e.ToolName != "" {
		parts = append(parts, e.ToolName)
	}

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, " ")
}

// Unwrap returns the underlying error.
func (e *ToolError) Unwrap() error {
	return e.Cause
}

// Is reports handler and input failures as ErrHandlerFailure. Other kinds match
// through their cause.
func (e *ToolError) Is(target error) bool {
	if target != ErrHandlerFailure {
		return false
	}
	return e.Type == ToolErrorHandler || e.Type == ToolErrorInvalidInput
}

// NewToolError creates a ToolError, classifying cause.
func NewToolError(toolName string, cause error) *ToolError {
	err := &ToolError{
		ToolName: toolName,
		Cause:    cause,
		Type:     classifyToolError(cause),
	}
	if cause != nil {
		err.Message = cause.Error()
	}
	return err
}

// WithToolCallID sets the tool call ID for correlating errors with specific calls.
func (e *ToolError) WithToolCallID(id string) *ToolError {
	e.ToolCallID = id
	return e
}

// Render is the user-facing string placed in a tool result.
func (e *ToolError) Render() string {
	switch e.Type {
	case ToolErrorUnknownTool:
		return fmt.Sprintf("Error: unknown tool %q", e.ToolName)
	case ToolErrorNoSession:
		return "Error: no active session for this tool call"
	default:
		if e.Message == "" {
			return fmt.Sprintf("Error executing %s", e.ToolName)
		}
		return fmt.Sprintf("Error executing %s: %s", e.ToolName, e.Message)
	}
}

func classifyToolError(err error) ToolErrorType {
	switch {
	case err == nil:
		return ToolErrorHandler
	case errors.Is(err, ErrUnknownTool):
		return ToolErrorUnknownTool
	case errors.Is(err, ErrNoActiveSession):
		return ToolErrorNoSession
	case errors.Is(err, ErrExternalService):
		return ToolErrorExternalService
	case errors.Is(err, ErrToolPanic):
		return ToolErrorPanic
	case errors.Is(err, ErrToolTimeout):
		return ToolErrorTimeout
	}

	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "invalid") || strings.Contains(errStr, "validation") {
		return ToolErrorInvalidInput
	}
	return ToolErrorHandler
}

// LoopError represents an error that occurred during a turn with context about
// which phase and step the error occurred in.
type LoopError struct {
	Phase   LoopPhase
	Step    int
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *LoopError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("loop error at %s (step %d): %s", e.Phase, e.Step, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("loop error at %s (step %d): %v", e.Phase, e.Step, e.Cause)
	}
	return fmt.Sprintf("loop error at %s (step %d)", e.Phase, e.Step)
}

// Unwrap returns the underlying error.
func (e *LoopError) Unwrap() error {
	return e.Cause
}

// LoopPhase represents a distinct phase in the turn lifecycle.
type LoopPhase string

const (
	PhaseInit         LoopPhase = "init"
	PhaseReconcile    LoopPhase = "reconcile"
	PhaseStream       LoopPhase = "stream"
	PhaseExecuteTools LoopPhase = "execute_tools"
	PhasePersist      LoopPhase = "persist"
)
