package snapshot

import "fmt"

// IntegrityError signals a conservation violation: a negative balance, a
// pool split exceeding the pool's value, or an allocation sum exceeding the
// distribution total. Always fatal, never retried; it means the event range
// is incomplete or an accounting assumption does not hold.
type IntegrityError struct {
	Stage  string
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("snapshot: integrity violation in %s: %s", e.Stage, e.Reason)
}

// integrityf builds an IntegrityError with a formatted reason.
func integrityf(stage, format string, args ...any) error {
	return &IntegrityError{Stage: stage, Reason: fmt.Sprintf(format, args...)}
}

// PreconditionError signals that the backing node cannot serve the
// historical state this run depends on. Fatal immediately, no retry:
// retrying cannot conjure up archive state.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	return "snapshot: precondition failed: " + e.Reason
}
