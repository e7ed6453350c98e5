package messages

import (
	"errors"
	"fmt"
)

// ErrConstruction is matched by every *ConstructionError.
var ErrConstruction = errors.New("construction error")

// ConstructionError reports a field that cannot form a valid fee update.
type ConstructionError struct {
	Field  string
	Reason string
}

func newConstructionError(field, reason string) *ConstructionError {
	return &ConstructionError{Field: field, Reason: reason}
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrConstruction.Error(), e.Field, e.Reason)
}

func (e *ConstructionError) Unwrap() error {
	return ErrConstruction
}
