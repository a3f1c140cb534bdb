package internal

import (
	"bytes"
	"fmt"
	"sync"
)

// MultiError is a collection of errors that is safe to extend from multiple goroutines.
type MultiError struct {
	mu   sync.Mutex
	errs []error
}

// Add adds the error to the error list if it is not nil.
func (e *MultiError) Add(err error) {
	if err == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if merr, ok := err.(*MultiError); ok {
		e.errs = append(e.errs, merr.errs...)
		return
	}

	e.errs = append(e.errs, err)
}

// Err returns the error list as an error or nil if it is empty.
func (e *MultiError) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch len(e.errs) {
	case 0:
		return nil
	case 1:
		return e.errs[0]
	}

	return &MultiError{errs: append([]error(nil), e.errs...)}
}

// Len returns the number of collected errors.
func (e *MultiError) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.errs)
}

// Error returns a concatenated string of the contained errors.
func (e *MultiError) Error() string {
	var buf bytes.Buffer

	if len(e.errs) > 1 {
		fmt.Fprintf(&buf, "%d errors: ", len(e.errs))
	}

	for i, err := range e.errs {
		if i != 0 {
			buf.WriteString("; ")
		}

		buf.WriteString(err.Error())
	}

	return buf.String()
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e *MultiError) Unwrap() []error {
	return e.errs
}
