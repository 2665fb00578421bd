package registry

import "errors"

// Sentinel errors for consistent error handling.
var (
	ErrToolNotFound    = errors.New("tool not found")
	ErrDuplicateTool   = errors.New("duplicate tool name")
	ErrInvalidTool     = errors.New("invalid tool")
	ErrInvalidParams   = errors.New("invalid params")
	ErrExecutionFailed = errors.New("tool execution failed")
)
