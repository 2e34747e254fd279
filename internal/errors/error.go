package errors

import (
	"bufio"
	"fmt"
	"os"
)

// Category represents the type of error.
type Category string

const (
	CategoryConfig Category = "config"
	CategoryCLI    Category = "cli"
	CategoryServer Category = "server"
)

// Location points into a file, usually casta.json.
type Location struct {
	File   string
	Line   int
	Column int
}

// String returns the location as a formatted string.
func (l *Location) String() string {
	if l == nil {
		return ""
	}
	if l.Column > 0 {
		return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// CastaError is a coded error with an explanation and a fix hint, meant for
// the operator's terminal.
type CastaError struct {
	// Code is a unique error identifier (e.g., "E100").
	Code string

	// Category is the error type.
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Location is the file position the error refers to, if any.
	Location *Location

	// Context contains the surrounding file lines.
	Context []string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *CastaError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *CastaError) Unwrap() error {
	return e.Wrapped
}

// WithLocation adds a file position and the lines around it.
func (e *CastaError) WithLocation(file string, line, column int) *CastaError {
	e.Location = &Location{File: file, Line: line, Column: column}
	e.Context = readContextLines(file, line, 5)
	return e
}

// WithOffset adds a file position from a byte offset into data, as reported
// by encoding/json.
func (e *CastaError) WithOffset(file string, data []byte, offset int64) *CastaError {
	line, col := 1, 1
	for i := int64(0); i < offset && i < int64(len(data)); i++ {
		if data[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return e.WithLocation(file, line, col)
}

// WithSuggestion adds a fix suggestion to the error.
func (e *CastaError) WithSuggestion(s string) *CastaError {
	e.Suggestion = s
	return e
}

// WithDetail replaces the detailed explanation.
func (e *CastaError) WithDetail(d string) *CastaError {
	e.Detail = d
	return e
}

// Wrap wraps another error.
func (e *CastaError) Wrap(err error) *CastaError {
	e.Wrapped = err
	return e
}

func readContextLines(filename string, targetLine, contextSize int) []string {
	file, err := os.Open(filename)
	if err != nil {
		return nil
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	lineNum := 0
	startLine := targetLine - contextSize/2
	endLine := targetLine + contextSize/2

	for scanner.Scan() {
		lineNum++
		if lineNum >= startLine && lineNum <= endLine {
			lines = append(lines, scanner.Text())
		}
		if lineNum > endLine {
			break
		}
	}
	return lines
}

// New creates a CastaError from a registered error code.
func New(code string) *CastaError {
	template, ok := registry[code]
	if !ok {
		return &CastaError{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &CastaError{
		Code:       code,
		Category:   template.Category,
		Message:    template.Message,
		Detail:     template.Detail,
		Suggestion: template.Suggestion,
	}
}

// Newf creates a CastaError with a formatted message and no code.
func Newf(category Category, format string, args ...any) *CastaError {
	return &CastaError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps err in a CastaError with the given code. An error that
// already is a CastaError is returned as is.
func FromError(err error, code string) *CastaError {
	if err == nil {
		return nil
	}
	if ce, ok := err.(*CastaError); ok {
		return ce
	}
	return New(code).Wrap(err)
}
