package segdag

import (
	"log/slog"

	"github.com/hupe1980/segdag/iddag"
	"github.com/hupe1980/segdag/protocol"
)

type options struct {
	segmentSize      int
	remote           protocol.RemoteService
	logger           *Logger
	metrics          MetricsCollector
	compress         bool
	compressionLevel int
}

// Option configures graph constructor behavior.
type Option func(*options)

// WithSegmentSize configures how many lower level segments merge into
// one higher level segment. Smaller values build more levels; larger
// values keep the hierarchy flatter. The default (16) works well for
// real commit graphs, small values mainly serve tests.
func WithSegmentSize(size int) Option {
	return func(o *options) {
		o.segmentSize = size
	}
}

// WithRemote configures the service used to lazily resolve ids and
// names missing from the local map. Setting a remote marks the graph
// lazy: lookups that miss locally turn into protocol round trips
// instead of errors.
func WithRemote(svc protocol.RemoteService) Option {
	return func(o *options) {
		o.remote = svc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metrics = mc
	}
}

// WithCompression enables zstd compression of the on-disk segment and
// name logs. Only meaningful with Open.
func WithCompression(level int) Option {
	return func(o *options) {
		o.compress = true
		o.compressionLevel = level
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		segmentSize:      iddag.DefaultSegmentSize,
		logger:           NoopLogger(),
		metrics:          NoopMetricsCollector{},
		compressionLevel: 3,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
