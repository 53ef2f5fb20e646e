package robinhood

import "github.com/mwantia/robinhood/backend"

// DefaultBatchSize is the number of fsevents ApplyStream hands to a
// backend per update when no batch size is configured.
const DefaultBatchSize = 512

type Options struct {
	Loader    backend.Loader
	BatchSize int
}

type Option func(*Options) error

func newDefaultOptions() *Options {
	return &Options{
		BatchSize: DefaultBatchSize,
	}
}

// WithLoader sets the loader consulted for URI schemes with no
// compiled-in backend.
func WithLoader(loader backend.Loader) Option {
	return func(opts *Options) error {
		opts.Loader = loader
		return nil
	}
}

// WithBatchSize sets the number of fsevents applied per backend update.
func WithBatchSize(size int) Option {
	return func(opts *Options) error {
		opts.BatchSize = size
		return nil
	}
}
