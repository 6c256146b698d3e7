package protocol

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a parse failure.
type ErrorKind int

const (
	// ErrEmpty is a blank or whitespace-only line.
	ErrEmpty ErrorKind = iota + 1
	ErrUnknownCommand
	ErrWrongArity
	ErrInvalidCoordinate
	ErrInvalidColor
	// ErrLineTooLong is reported by the session when a partial line
	// outgrows its limit; the parser never returns it.
	ErrLineTooLong
)

func (k ErrorKind) String() string {
	switch k {
	case ErrEmpty:
		return "empty line"
	case ErrUnknownCommand:
		return "unknown command"
	case ErrWrongArity:
		return "wrong number of arguments"
	case ErrInvalidCoordinate:
		return "invalid coordinate"
	case ErrInvalidColor:
		return "invalid color"
	case ErrLineTooLong:
		return "line too long"
	default:
		return "parse error"
	}
}

// ParseError describes a line that did not produce a Command.
type ParseError struct {
	Kind ErrorKind
	// Token is the offending token, truncated for logging.
	Token string
	Err   error
}

const maxTokenEcho = 32

func newParseError(kind ErrorKind, token []byte, err error) *ParseError {
	if len(token) > maxTokenEcho {
		token = token[:maxTokenEcho]
	}
	return &ParseError{Kind: kind, Token: string(token), Err: err}
}

func (e *ParseError) Error() string {
	if e.Token == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s %q", e.Kind, e.Token)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Silent reports whether the failure should never be answered, even
// when error replies are enabled.
func (e *ParseError) Silent() bool { return e.Kind == ErrEmpty }

// IsParseError reports whether err is (or wraps) a *ParseError and
// returns it.
func IsParseError(err error) (*ParseError, bool) {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
