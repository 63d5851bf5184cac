package schema

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced to the application layer. Transport bindings map
// these onto status codes; the orchestrator never lets them reach the user
// as raw errors.
var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrInvalidFeedbackIndex = errors.New("invalid interaction index")
	ErrInvalidRating        = errors.New("rating must be between 1 and 5")
	ErrEmptyQuestion        = errors.New("question cannot be empty")
)

// CollaboratorError wraps a failure from an external collaborator
// (vector search, text generation, or the SQL agent).
type CollaboratorError struct {
	Collaborator string
	Err          error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s collaborator failed: %v", e.Collaborator, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// NewCollaboratorError tags err with the collaborator that produced it.
func NewCollaboratorError(collaborator string, err error) *CollaboratorError {
	return &CollaboratorError{Collaborator: collaborator, Err: err}
}
