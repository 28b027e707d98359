package docstore

import (
	"time"

	"go.uber.org/zap"
)

// Options configures a Storage.
type Options struct {
	// VersionField is the BSON field holding the document version.
	VersionField string

	// CacheTTL is how long documents stay in the cache.
	CacheTTL time.Duration

	// CacheQueryResults caches every document returned by FindMany.
	CacheQueryResults bool

	Logger *zap.Logger
}

// DefaultOptions returns the default storage options.
func DefaultOptions() *Options {
	return &Options{
		VersionField:      "_rev",
		CacheTTL:          time.Minute * 10,
		CacheQueryResults: true,
		Logger:            zap.NewNop(),
	}
}

// EditOption configures a single write.
//
//	rec, diff, err := store.FindOneAndUpdate(ctx, id, editFn,
//	    WithMaxRetries(5),
//	    WithRetryDelay(time.Millisecond * 20),
//	)
type EditOption func(*EditOptions)

// EditOptions controls retries of writes that lose a version race.
type EditOptions struct {
	// MaxRetries is the maximum number of attempts. 0 means unlimited, bounded
	// by Timeout.
	MaxRetries int

	// RetryDelay is the initial delay between attempts. It doubles after every
	// conflict up to MaxRetryDelay.
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration

	// RetryJitter randomizes each delay by up to this fraction, in [0, 1].
	RetryJitter float64

	// Timeout bounds the whole operation including retries.
	Timeout time.Duration

	// ExpectedVersion, when non-zero, must equal the stored version. A
	// mismatch fails immediately with ErrVersionMismatch instead of retrying.
	ExpectedVersion int64
}

func WithMaxRetries(maxRetries int) EditOption {
	return func(opts *EditOptions) {
		opts.MaxRetries = maxRetries
	}
}

func WithRetryDelay(delay time.Duration) EditOption {
	return func(opts *EditOptions) {
		opts.RetryDelay = delay
	}
}

func WithMaxRetryDelay(maxDelay time.Duration) EditOption {
	return func(opts *EditOptions) {
		opts.MaxRetryDelay = maxDelay
	}
}

func WithRetryJitter(jitter float64) EditOption {
	return func(opts *EditOptions) {
		opts.RetryJitter = jitter
	}
}

func WithTimeout(timeout time.Duration) EditOption {
	return func(opts *EditOptions) {
		opts.Timeout = timeout
	}
}

// WithExpectedVersion makes the write conditional on the stored version.
func WithExpectedVersion(version int64) EditOption {
	return func(opts *EditOptions) {
		opts.ExpectedVersion = version
	}
}

// NewEditOptions returns the defaults with opts applied.
func NewEditOptions(opts ...EditOption) *EditOptions {
	options := &EditOptions{
		MaxRetries:    0,
		RetryDelay:    time.Millisecond * 10,
		MaxRetryDelay: time.Millisecond * 100,
		RetryJitter:   0.1,
		Timeout:       time.Second * 10,
	}

	for _, opt := range opts {
		opt(options)
	}

	return options
}
