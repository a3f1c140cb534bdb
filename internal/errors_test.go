package internal

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/meltwater/blobfetch/test"
)

var errSentinel = errors.New("sentinel")

func TestMultiErrorEmpty(t *testing.T) {
	errs := &MultiError{}
	errs.Add(nil)

	test.Ok(t, errs.Err())
	test.Equals(t, 0, errs.Len())
}

func TestMultiErrorSingleIsUnwrapped(t *testing.T) {
	errs := &MultiError{}
	errs.Add(errSentinel)

	test.Assert(t, errs.Err() == errSentinel, "expected the single error to be returned as is")
}

func TestMultiErrorMatchesAnyCollected(t *testing.T) {
	errs := &MultiError{}
	errs.Add(errors.New("first"))
	errs.Add(fmt.Errorf("wrapped, %w", errSentinel))

	err := errs.Err()
	test.ErrorIs(t, err, errSentinel)
	test.Equals(t, "2 errors: first; wrapped, sentinel", err.Error())
}

func TestMultiErrorFlattens(t *testing.T) {
	inner := &MultiError{}
	inner.Add(errors.New("a"))
	inner.Add(errors.New("b"))

	outer := &MultiError{}
	outer.Add(inner)
	outer.Add(errors.New("c"))

	test.Equals(t, 3, outer.Len())
}

func TestMultiErrorConcurrentAdd(t *testing.T) {
	var (
		wg   sync.WaitGroup
		errs = &MultiError{}
	)

	for i := 0; i < 10; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()
			errs.Add(fmt.Errorf("err %d", i))
		}(i)
	}

	wg.Wait()
	test.Equals(t, 10, errs.Len())
}
