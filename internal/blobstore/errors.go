package blobstore

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreNotReady is returned while no storage backend is attached.
	ErrStoreNotReady = errors.New("blob store not ready")
	// ErrNotFound is returned for absent or malformed blob ids.
	ErrNotFound = errors.New("blob not found")
	// ErrStoreWrite matches every *StoreWriteError.
	ErrStoreWrite = errors.New("blob store write failed")
	// ErrCorrupt is returned by a blob reader whose bytes do not match the
	// recorded length or digest.
	ErrCorrupt = errors.New("blob content corrupt")
)

// StoreWriteError reports a failed Put. The blob was not created.
type StoreWriteError struct {
	Op  string
	Err error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("blob store write (%s): %v", e.Op, e.Err)
}

func (e *StoreWriteError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrStoreWrite) match any StoreWriteError.
func (e *StoreWriteError) Is(target error) bool {
	return target == ErrStoreWrite
}
