package genconfig

import (
	"fmt"
	"strings"
)

// NotFoundError indicates that no document with the requested name exists.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("genconfig: configuration %q not found", e.Name)
}

// CycleError indicates that an _extends chain revisited a document.
type CycleError struct {
	Chain []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("genconfig: inheritance cycle: %s", strings.Join(e.Chain, " -> "))
}

// ParseError indicates that a document could not be read or decoded.
type ParseError struct {
	Name   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("genconfig: invalid configuration %q: %s", e.Name, e.Reason)
}
