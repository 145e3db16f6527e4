package bbi

import (
	"errors"
	"fmt"
	"io"
)

var (
	// ErrInvalidArgument marks malformed build parameters or queries. These are
	// rejected before any I/O is issued.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrCorruptIndex marks on-disk structures that fail validation: bad magic,
	// inconsistent page counts or truncation.
	ErrCorruptIndex = errors.New("corrupt index")
	// ErrIO marks failures of the underlying medium. The original error is kept
	// in the chain.
	ErrIO = errors.New("i/o failure")
	// ErrLayout marks a builder whose written positions disagree with the
	// offsets it planned and recorded in a header.
	ErrLayout = errors.New("layout mismatch")

	// ErrUnknownChrom marks a name lookup that found no chromosome. It is an
	// ErrInvalidArgument.
	ErrUnknownChrom = fmt.Errorf("%w: chromosome not found", ErrInvalidArgument)
)

// CorruptIndexError describes a structural check that failed at a given file
// offset.
type CorruptIndexError struct {
	Offset   int64
	What     string
	Expected any
	Actual   any
}

func (e *CorruptIndexError) Error() string {
	if e.Expected == nil && e.Actual == nil {
		return fmt.Sprintf("corrupt index at offset %d: %s", e.Offset, e.What)
	}
	return fmt.Sprintf("corrupt index at offset %d: %s: expected %v, got %v",
		e.Offset, e.What, e.Expected, e.Actual)
}

func (e *CorruptIndexError) Unwrap() error {
	return ErrCorruptIndex
}

func corruptf(offset int64, what string, expected, actual any) error {
	return &CorruptIndexError{Offset: offset, What: what, Expected: expected, Actual: actual}
}

func layoutErr(what string, written, planned int64) error {
	return fmt.Errorf("%w: %s written at %d, header says %d", ErrLayout, what, written, planned)
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// readErr classifies an error raised while decoding a structure at offset.
// Running off the end of the medium means the structure is truncated.
func readErr(offset int64, what string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCorruptIndex) || errors.Is(err, ErrIO) {
		return err
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &CorruptIndexError{Offset: offset, What: what + ": truncated"}
	}
	return fmt.Errorf("%w: reading %s at offset %d: %w", ErrIO, what, offset, err)
}
