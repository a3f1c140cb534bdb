package fetch

import (
	"os"

	"github.com/meltwater/blobfetch/archive"
)

type options struct {
	archive     archive.Archive
	fileMode    os.FileMode
	metricsFile string
}

// Option overrides behavior of Fetcher.
type Option interface {
	apply(*options)
}

type optionFunc func(*options)

func (f optionFunc) apply(o *options) {
	f(o)
}

// WithExtract sets the archive the fetched blob is extracted with.
// The destination becomes a directory instead of a file.
func WithExtract(a archive.Archive) Option {
	return optionFunc(func(o *options) {
		o.archive = a
	})
}

// WithFileMode sets the permission bits of the written file.
func WithFileMode(m os.FileMode) Option {
	return optionFunc(func(o *options) {
		o.fileMode = m
	})
}

// WithMetricsFile sets the file that fetch metadata is appended to.
func WithMetricsFile(name string) Option {
	return optionFunc(func(o *options) {
		o.metricsFile = name
	})
}
