package shared

import "fmt"

// InvariantError reports an accounting invariant violation. It is raised with
// panic through Abort and never returned as an ordinary error.
type InvariantError struct {
	Op     string
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violated in %s: %s", e.Op, e.Detail)
}

// Abort panics with an *InvariantError.
func Abort(op, format string, args ...any) {
	panic(&InvariantError{Op: op, Detail: fmt.Sprintf(format, args...)})
}

// AsInvariant extracts an *InvariantError from a recovered panic value.
func AsInvariant(recovered any) (*InvariantError, bool) {
	err, ok := recovered.(*InvariantError)
	return err, ok
}
