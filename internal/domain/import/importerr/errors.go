// Package importerr defines the error taxonomy shared by the import pipeline.
//
// File-level problems (ParseError, MappingError) abort an operation. Row-level
// problems (RowError) are collected per row and never abort anything.
package importerr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyFile        = errors.New("file is empty")
	ErrNoHeaders        = errors.New("could not read header row")
	ErrManifestNotFound = errors.New("archive does not contain transactions.csv")
	ErrTemplateNotFound = errors.New("import template not found")
	ErrTemplateRequired = errors.New("archive imports require a saved template")
)

// ParseError means the uploaded file could not be read at all.
type ParseError struct {
	Line    int // 1-based physical line, 0 when unknown
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Line > 0 {
		return fmt.Sprintf("parse error at line %d: %s", e.Line, msg)
	}
	return "parse error: " + msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// MappingError means the mapping configuration cannot be applied to the file.
type MappingError struct {
	Missing  []string // required fields left unmapped
	Unknown  []string // mapped headers absent from the file
	Problems []string // invalid parsing options and similar
	Err      error
}

func (e *MappingError) Error() string {
	var parts []string
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required fields: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Unknown) > 0 {
		parts = append(parts, "columns not found in file: "+strings.Join(e.Unknown, ", "))
	}
	parts = append(parts, e.Problems...)
	if len(parts) == 0 {
		return "invalid mapping"
	}
	return "invalid mapping: " + strings.Join(parts, "; ")
}

func (e *MappingError) Unwrap() error {
	return e.Err
}

// Empty reports whether no problem was recorded.
func (e *MappingError) Empty() bool {
	return e.Err == nil && len(e.Missing) == 0 && len(e.Unknown) == 0 && len(e.Problems) == 0
}

// RowError is one validation failure for one field of one row.
type RowError struct {
	Field   string `json:"field"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
}

func (e RowError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("%s %q: %s", e.Field, e.Value, e.Message)
	}
	return e.Field + ": " + e.Message
}

// IsParse reports whether err is (or wraps) a ParseError.
func IsParse(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// IsMapping reports whether err is (or wraps) a MappingError.
func IsMapping(err error) bool {
	var me *MappingError
	return errors.As(err, &me)
}
