package common

import (
	"errors"
	"fmt"
	"io"
	"time"
)

var (
	// ErrNotImplemented is returned when an operation is not supported by a backend.
	ErrNotImplemented = errors.New("not implemented")
	// ErrConfiguration means required connection parameters are missing or invalid.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrAuthentication means the credentials were rejected or lack permission.
	ErrAuthentication = errors.New("authentication failed")
	// ErrNotFound means the container, bucket or object does not exist.
	ErrNotFound = errors.New("not found")
	// ErrTransfer means the remote side failed while the content was being transferred.
	ErrTransfer = errors.New("transfer failed")
	// ErrLocalIO means the local destination could not be written.
	ErrLocalIO = errors.New("local io failed")
)

// FileEntry defines a single remote object.
type FileEntry struct {
	Path         string
	Size         int64
	LastModified time.Time
}

// Copy copies from r to w. Read failures are tagged with ErrTransfer and
// write failures with ErrLocalIO.
func Copy(w io.Writer, r io.Reader) (int64, error) {
	ew := &errWriter{w: w}

	n, err := io.Copy(ew, r)
	if err == nil {
		return n, nil
	}

	if ew.err != nil {
		return n, fmt.Errorf("write the object, %w: %w", ErrLocalIO, err)
	}

	return n, fmt.Errorf("copy the object, %w: %w", ErrTransfer, err)
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	n, err := e.w.Write(p)
	if err != nil {
		e.err = err
	}

	return n, err
}
