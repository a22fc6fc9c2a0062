// Package policy decides how a failed operation is reported. Background
// refreshes degrade silently; operator-initiated actions surface a short,
// fixed message. Both log the underlying cause.
package policy

import "log/slog"

// Policy is the error-reporting policy attached to an operation.
type Policy int

const (
	// Silent logs the failure and shows the operator nothing.
	Silent Policy = iota
	// Surfaced logs the failure and returns a user-facing message.
	Surfaced
)

func (p Policy) String() string {
	if p == Surfaced {
		return "surfaced"
	}
	return "silent"
}

// Operation names an action together with its policy and the message shown
// to the operator when it fails under the Surfaced policy.
type Operation struct {
	Name    string
	Policy  Policy
	Message string
}

// Fail logs cause and returns the message to surface, which is empty for
// silent operations. Extra key/value pairs are appended to the log record.
func (op Operation) Fail(cause error, attrs ...any) string {
	args := append([]any{"op", op.Name, "policy", op.Policy.String(), "error", cause}, attrs...)
	if op.Policy == Silent {
		slog.Warn("operation failed", args...)
		return ""
	}
	slog.Error("operation failed", args...)
	return op.Message
}
