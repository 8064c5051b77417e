package tactile

import "context"

// Executor runs commands. Implementations block until the process exits.
type Executor interface {
	// Execute runs cmd. A non-nil error means the command was malformed;
	// process failures are reported through the result.
	Execute(ctx context.Context, cmd Command) (*ExecutionResult, error)
}

var _ Executor = (*DirectExecutor)(nil)
