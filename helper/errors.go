package helper

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Error classes. Component errors wrap one of these so callers can map them with errors.Is.
var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrTransient         = errors.New("transient network error")
)

var (
	ErrInvalidFilename  = fmt.Errorf("%w: invalid filename, filename must be alphanumeric and may contain dots, underscores and hyphens", ErrValidation)
	ErrInvalidSize      = fmt.Errorf("%w: file size must not be negative", ErrValidation)
	ErrFileTooLarge     = fmt.Errorf("%w: file has more chunks than the master accepts", ErrValidation)
	ErrFileNotFound     = fmt.Errorf("%w: file does not exist", ErrNotFound)
	ErrChunkNotFound    = fmt.Errorf("%w: chunk not found", ErrNotFound)
	ErrFileExists       = fmt.Errorf("%w: file with same name already exists", ErrConflict)
	ErrNoHealthyServers = fmt.Errorf("%w: not enough healthy servers", ErrResourceExhausted)
)

// ChunksRemainError is returned when a file is deleted while chunk servers still hold some of its chunks.
type ChunksRemainError struct {
	Filename string
	Chunks   []int
}

func (e *ChunksRemainError) Error() string {
	ids := make([]string, len(e.Chunks))
	for i, c := range e.Chunks {
		ids[i] = strconv.Itoa(c)
	}
	return fmt.Sprintf("file %s cannot be deleted, chunks still stored: [%s]", e.Filename, strings.Join(ids, ", "))
}

func (e *ChunksRemainError) Unwrap() error {
	return ErrConflict
}
