package internal

import (
	"fmt"
	"io"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// CloseWithErrLogf is making sure we log every error, even those from best effort tiny closers.
func CloseWithErrLogf(logger log.Logger, closer io.Closer, format string, a ...interface{}) {
	err := closeIfSet(closer)
	if err == nil {
		return
	}

	if logger == nil {
		logger = log.NewNopLogger()
	}

	level.Warn(logger).Log("msg", "detected close error", "err", fmt.Errorf(format+", %w", append(a, err)...))
}

// CloseWithErrCapturef runs function and on error return error by argument including the given error.
// The captured error only replaces a nil error, so the first failure wins.
func CloseWithErrCapturef(err *error, closer io.Closer, format string, a ...interface{}) {
	if err == nil {
		return
	}

	cerr := closeIfSet(closer)
	if cerr == nil {
		return
	}

	mErr := &MultiError{}
	mErr.Add(*err)
	mErr.Add(fmt.Errorf(format+", %w", append(a, cerr)...))
	*err = mErr.Err()
}

func closeIfSet(closer io.Closer) error {
	if closer == nil {
		return nil
	}

	return closer.Close()
}
