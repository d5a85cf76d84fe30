package observability

import "context"

// ContextKey is the type for context keys used for log correlation.
type ContextKey string

const (
	RequestIDKey  ContextKey = "request_id"
	SessionIDKey  ContextKey = "session_id"
	ToolCallIDKey ContextKey = "tool_call_id"
	TaskIDKey     ContextKey = "task_id"
)

var correlationKeys = []ContextKey{RequestIDKey, SessionIDKey, ToolCallIDKey, TaskIDKey}

// AddRequestID adds a request ID to the context.
func AddRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// AddSessionID adds a session ID to the context.
func AddSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionIDKey, sessionID)
}

// AddToolCallID adds a tool call ID to the context.
func AddToolCallID(ctx context.Context, toolCallID string) context.Context {
	return context.WithValue(ctx, ToolCallIDKey, toolCallID)
}

// AddTaskID adds a scheduled task ID to the context.
func AddTaskID(ctx context.Context, taskID string) context.Context {
	return context.WithValue(ctx, TaskIDKey, taskID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string { return stringValue(ctx, RequestIDKey) }

// GetSessionID retrieves the session ID from the context.
func GetSessionID(ctx context.Context) string { return stringValue(ctx, SessionIDKey) }

// GetToolCallID retrieves the tool call ID from the context.
func GetToolCallID(ctx context.Context) string { return stringValue(ctx, ToolCallIDKey) }

// GetTaskID retrieves the scheduled task ID from the context.
func GetTaskID(ctx context.Context) string { return stringValue(ctx, TaskIDKey) }

func stringValue(ctx context.Context, key ContextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
