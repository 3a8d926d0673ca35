package inquiry

import "fmt"

// PersistenceError reports a failed read or write against the inquiry
// store. Not-found lookups surface as sql.ErrNoRows, not this type.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func persistenceErr(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}
