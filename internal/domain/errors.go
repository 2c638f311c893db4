package domain

import "fmt"

// MissingReferenceError reports a stored row whose required joined reference is absent.
type MissingReferenceError struct {
	Entity    string
	ID        string
	Reference string
}

func (e MissingReferenceError) Error() string {
	return fmt.Sprintf("%s %s is missing its %s reference", e.Entity, e.ID, e.Reference)
}
