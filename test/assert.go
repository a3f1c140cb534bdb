package test

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// Assert fails the test if the condition is false.
func Assert(tb testing.TB, condition bool, msg string, v ...interface{}) {
	tb.Helper()

	if !condition {
		tb.Fatalf("\033[31m"+msg+"\033[39m\n\n", v...)
	}
}

// Ok fails the test if an err is not nil.
func Ok(tb testing.TB, err error) {
	tb.Helper()

	if err != nil {
		tb.Fatalf("\033[31munexpected error: %v\033[39m\n\n", err)
	}
}

// NotOk fails the test if an err is nil.
func NotOk(tb testing.TB, err error) {
	tb.Helper()

	if err == nil {
		tb.Fatalf("\033[31mexpected error, got nothing \033[39m\n\n")
	}
}

// ErrorIs fails the test if err does not match target in its chain.
func ErrorIs(tb testing.TB, err, target error) {
	tb.Helper()

	if !errors.Is(err, target) {
		tb.Fatalf("\033[31mexpected error matching <%v>, got: <%v>\033[39m\n\n", target, err)
	}
}

// Equals fails the test if exp is not equal to act.
func Equals(tb testing.TB, exp, act interface{}, opts ...cmp.Option) {
	tb.Helper()

	if diff := cmp.Diff(exp, act, opts...); diff != "" {
		tb.Fatalf("\033[31m\n\n\t(-exp, +got):\n%s\033[39m\n\n", diff)
	}
}

// Exists fails if the given path does not exist.
func Exists(tb testing.TB, path string) {
	tb.Helper()

	if _, err := os.Stat(path); err != nil {
		tb.Fatalf("\033[31mexpected <%s> to exist: %v\033[39m\n\n", path, err)
	}
}

// NotExists fails if the given path exists.
func NotExists(tb testing.TB, path string) {
	tb.Helper()

	_, err := os.Stat(path)
	if err == nil {
		tb.Fatalf("\033[31mexpected <%s> to not exist\033[39m\n\n", path)
	}

	if !errors.Is(err, os.ErrNotExist) {
		tb.Fatalf("\033[31mstat <%s>: %v\033[39m\n\n", path, err)
	}
}

// EqualFileContent fails if the file at path does not hold exactly the expected bytes.
func EqualFileContent(tb testing.TB, path string, exp []byte) {
	tb.Helper()

	act, err := os.ReadFile(path)
	if err != nil {
		tb.Fatalf("\033[31mread <%s>: %v\033[39m\n\n", path, err)
	}

	if !bytes.Equal(exp, act) {
		tb.Fatalf("\033[31mcontent of <%s> differs:\n%s\033[39m\n\n", path, cmp.Diff(string(exp), string(act)))
	}
}
