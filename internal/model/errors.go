package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies fatal patcher failures.
type ErrorKind string

const (
	KindPrecondition    ErrorKind = "precondition"
	KindStructuralParse ErrorKind = "structural-parse"
)

// Sentinels for errors.Is.
var (
	ErrPrecondition    = errors.New("precondition not met")
	ErrStructuralParse = errors.New("expected source landmark not found")
)

// Error is a fatal failure surfaced to the host. FileContent holds the text
// that was scanned when a landmark could not be found.
type Error struct {
	Kind        ErrorKind
	Message     string
	FileContent string
}

func (e *Error) Error() string { return e.Message }

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	switch e.Kind {
	case KindPrecondition:
		return target == ErrPrecondition
	case KindStructuralParse:
		return target == ErrStructuralParse
	}
	return false
}

// Preconditionf returns a KindPrecondition error.
func Preconditionf(format string, args ...any) *Error {
	return &Error{Kind: KindPrecondition, Message: fmt.Sprintf(format, args...)}
}

// StructuralParse returns a KindStructuralParse error carrying the scanned content.
func StructuralParse(content, format string, args ...any) *Error {
	return &Error{Kind: KindStructuralParse, Message: fmt.Sprintf(format, args...), FileContent: content}
}
