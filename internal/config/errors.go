package config

import (
	"errors"
	"fmt"
)

var (
	// ErrFileNotFound is returned by Load when the named file is missing.
	ErrFileNotFound = errors.New("config file not found")

	// ErrValidationFailed matches every ValidationError.
	ErrValidationFailed = errors.New("invalid configuration")
)

// ParseError reports a config file or environment variable that could not
// be decoded. Line and Column are zero when the decoder gave no position.
type ParseError struct {
	Path    string
	Line    int
	Column  int
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	where := e.Path
	if e.Line > 0 {
		where = fmt.Sprintf("%s:%d:%d", e.Path, e.Line, e.Column)
	}
	return fmt.Sprintf("config %s: %s", where, e.Message)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError names the first setting that broke a validate rule.
// Path is the dotted TOML key, such as "store.path".
type ValidationError struct {
	Path  string
	Rule  string
	Value any
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config %s: value %v breaks rule %q", e.Path, e.Value, e.Rule)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidationFailed }
