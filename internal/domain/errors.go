package domain

import "errors"

// Failures surfaced by the indexing and retrieval pipeline. Callers wrap
// them with context using %w and match with errors.Is.
var (
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrEmptyInput        = errors.New("empty input")
	ErrEmptyQuery        = errors.New("empty query")
	ErrEmptyQuestion     = errors.New("empty question")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrCountMismatch     = errors.New("vectors and metadata count mismatch")
	ErrEmptyIndex        = errors.New("index is empty")
	ErrNotFound          = errors.New("not found")
	ErrCorruptSnapshot   = errors.New("corrupt snapshot")
	ErrUnsupportedType   = errors.New("unsupported file type")
	ErrTooLarge          = errors.New("file too large")
	ErrNoDocuments       = errors.New("no document indexed yet")
)
