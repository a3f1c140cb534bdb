package plugin

// Error recognized error from plugin.
type Error struct {
	msg string
	err error
}

func (e Error) Error() string {
	return e.msg + ", " + e.err.Error()
}

func (e Error) Unwrap() error {
	return e.err
}
