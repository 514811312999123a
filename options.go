package ucisession

import (
	"time"

	"github.com/rs/zerolog"
)

// Default session configuration values.
const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultFlushInterval    = 500 * time.Millisecond
	defaultEventBuffer      = 64
	defaultScannerBuffer    = 1 << 20 // 1 MB
	defaultGracePeriod      = 5 * time.Second
)

// Options holds resolved construction-time configuration for a Session.
// Use NewSession with Option functions to customize these values.
type Options struct {
	// HandshakeTimeout bounds the uci/uciok and isready/readyok exchanges
	// during Start and NewGame. Steady-state go/stop have no timeout; a
	// hung engine is surfaced through process liveness instead.
	HandshakeTimeout time.Duration

	// FlushInterval is how often accumulated search progress is flushed
	// to the event stream while a search runs.
	FlushInterval time.Duration

	// EventBuffer is the channel buffer size for the event stream.
	EventBuffer int

	// ScannerBuffer is the maximum line size in bytes for the stdout scanner.
	ScannerBuffer int

	// GracePeriod is the duration to wait after SIGTERM before SIGKILL.
	GracePeriod time.Duration

	// Logger receives session diagnostics. Defaults to a no-op logger.
	Logger zerolog.Logger
}

// Option configures a Session at construction time.
type Option func(*Options)

// WithHandshakeTimeout bounds the handshake exchanges during Start and
// NewGame. Values <= 0 are ignored.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.HandshakeTimeout = d
		}
	}
}

// WithFlushInterval sets the progress-batch flush interval.
// Values <= 0 are ignored.
func WithFlushInterval(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.FlushInterval = d
		}
	}
}

// WithEventBuffer sets the channel buffer size for the event stream.
// Values <= 0 are ignored.
func WithEventBuffer(size int) Option {
	return func(o *Options) {
		if size > 0 {
			o.EventBuffer = size
		}
	}
}

// WithScannerBuffer sets the maximum line size in bytes for the stdout
// scanner. Values <= 0 are ignored.
func WithScannerBuffer(size int) Option {
	return func(o *Options) {
		if size > 0 {
			o.ScannerBuffer = size
		}
	}
}

// WithGracePeriod sets the duration to wait after SIGTERM before SIGKILL.
// Values <= 0 are ignored.
func WithGracePeriod(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.GracePeriod = d
		}
	}
}

// WithLogger sets the session logger.
func WithLogger(log zerolog.Logger) Option {
	return func(o *Options) {
		o.Logger = log
	}
}

func resolveOptions(opts ...Option) Options {
	o := Options{
		HandshakeTimeout: defaultHandshakeTimeout,
		FlushInterval:    defaultFlushInterval,
		EventBuffer:      defaultEventBuffer,
		ScannerBuffer:    defaultScannerBuffer,
		GracePeriod:      defaultGracePeriod,
		Logger:           zerolog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
