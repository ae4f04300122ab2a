package selection

import "fmt"

// TransitionError reports a transition invoked from a phase that does not
// allow it. It indicates a caller bug; the state is left unchanged.
type TransitionError struct {
	Op     string
	From   Phase
	Reason string
}

func (e *TransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid transition %s from %s: %s", e.Op, e.From, e.Reason)
	}
	return fmt.Sprintf("invalid transition %s from %s", e.Op, e.From)
}
