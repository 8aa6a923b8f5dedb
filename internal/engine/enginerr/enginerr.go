// Package enginerr defines the sentinel errors the turn engine's components
// wrap their failures in, so callers classify outcomes with errors.Is
// instead of matching on message strings (spec §7 error taxonomy).
package enginerr

import "errors"

var (
	// ErrSchemaInvalid marks a tool-input schema validation failure.
	ErrSchemaInvalid = errors.New("tool input failed schema validation")

	// ErrPermissionDenied marks a Permission Engine Deny decision.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrHookBlocked marks a PreToolUse hook block/deny decision.
	ErrHookBlocked = errors.New("blocked by hook")

	// ErrToolExecution marks a tool's own reported execution error.
	ErrToolExecution = errors.New("tool execution error")

	// ErrCancelled marks a turn that ended via cancellation.
	ErrCancelled = errors.New("turn cancelled")

	// ErrMaxTurns marks a turn that exceeded the configured model-round cap.
	ErrMaxTurns = errors.New("max turns exceeded")

	// ErrModel marks a model-query (HTTP/parse) failure that terminates a turn.
	ErrModel = errors.New("model error")
)
