package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrBackupNotFound is returned by Restore when the named snapshot does not exist.
	ErrBackupNotFound = errors.New("storage: backup not found")
	// ErrBackupExists is returned by Create when every name for the current
	// second (plain and _01.._99) is already taken.
	ErrBackupExists = errors.New("storage: backup already exists")
	// ErrInvalidKey rejects document keys that would escape the store directory.
	ErrInvalidKey = errors.New("storage: invalid document key")
)

// DecodeError reports a document whose content does not parse into the
// requested structure.
type DecodeError struct {
	Key string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("storage: decode %s: %v", e.Key, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
