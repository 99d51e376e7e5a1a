// Package errs defines the engine's structured error taxonomy.
//
// Every error the engine core returns to a caller or records in a
// StageExecutionRecord is an *Error carrying a category, a source
// subsystem, a severity, a short id, and a human message.
package errs

import "fmt"

// Category classifies the kind of failure.
type Category string

const (
	CategoryValidation Category = "validation"
	CategoryRouting    Category = "routing"
	CategoryTool       Category = "tool"
	CategoryAgent      Category = "agent"
	CategoryJSON       Category = "json"
	CategorySecurity   Category = "security"
	CategoryUnknown    Category = "unknown"
)

// Source identifies the subsystem that raised the error.
type Source string

const (
	SourceConfigLoader  Source = "config-loader"
	SourceRuntime       Source = "runtime"
	SourceAgentRuntime  Source = "agent-runtime"
	SourceToolRuntime   Source = "tool-runtime"
	SourceJSONEngine    Source = "json-engine"
	SourceMemory        Source = "memory"
	SourceRouter        Source = "router"
	SourceTaskManager   Source = "task-manager"
	SourceNodeExecutor  Source = "node-executor"
)

// Severity ranks how serious an error is.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
	SeverityFatal   Severity = "fatal"
)

// Error is the engine's structured error type.
type Error struct {
	ID       string         `json:"id"`
	Category Category       `json:"category"`
	Source   Source         `json:"source"`
	Severity Severity       `json:"severity"`
	Message  string         `json:"message"`
	StageID  string         `json:"stage_id,omitempty"`
	TaskID   string         `json:"task_id,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
	wrapped  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.StageID != "" {
		return fmt.Sprintf("%s[%s/%s]: %s", e.Category, e.Source, e.StageID, e.Message)
	}
	return fmt.Sprintf("%s[%s]: %s", e.Category, e.Source, e.Message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.wrapped
}

// New builds an *Error with the given category, source and message.
func New(category Category, source Source, id, message string) *Error {
	return &Error{ID: id, Category: category, Source: source, Severity: SeverityError, Message: message}
}

// Wrap builds an *Error carrying an underlying cause.
func Wrap(category Category, source Source, id string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{ID: id, Category: category, Source: source, Severity: SeverityError, Message: err.Error(), wrapped: err}
}

func (e *Error) WithStage(stageID string) *Error {
	if e == nil {
		return nil
	}
	cp := *e
	cp.StageID = stageID
	return &cp
}

func (e *Error) WithTask(taskID string) *Error {
	if e == nil {
		return nil
	}
	cp := *e
	cp.TaskID = taskID
	return &cp
}

func (e *Error) WithDetails(details map[string]any) *Error {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Details = details
	return &cp
}

func (e *Error) WithSeverity(s Severity) *Error {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Severity = s
	return &cp
}

// Validation builds a validation-category engine error.
func Validation(source Source, id, format string, args ...any) *Error {
	return New(CategoryValidation, source, id, fmt.Sprintf(format, args...))
}

// Routing builds a routing-category engine error.
func Routing(source Source, id, format string, args ...any) *Error {
	return New(CategoryRouting, source, id, fmt.Sprintf(format, args...))
}

// Tool builds a tool-category engine error.
func Tool(source Source, id, format string, args ...any) *Error {
	return New(CategoryTool, source, id, fmt.Sprintf(format, args...))
}

// Agent builds an agent-category engine error.
func Agent(source Source, id, format string, args ...any) *Error {
	return New(CategoryAgent, source, id, fmt.Sprintf(format, args...))
}

// JSONErr builds a json-category engine error.
func JSONErr(source Source, id, format string, args ...any) *Error {
	return New(CategoryJSON, source, id, fmt.Sprintf(format, args...))
}

// Security builds a security-category engine error.
func Security(source Source, id, format string, args ...any) *Error {
	return New(CategorySecurity, source, id, fmt.Sprintf(format, args...))
}

// IsSecurity reports whether err is a security-category engine error.
func IsSecurity(err error) bool {
	e, ok := err.(*Error)
	return ok && e != nil && e.Category == CategorySecurity
}
