package sdk

import "time"

// DefaultTimeout bounds one tool call. A recompute reads every source of a
// project, which can be slow behind a source plugin.
const DefaultTimeout = 60 * time.Second

type options struct {
	timeout      time.Duration
	maxAttempts  int
	initialDelay time.Duration
	checkSchema  bool
}

func defaultOptions() options {
	return options{
		timeout:      DefaultTimeout,
		maxAttempts:  3,
		initialDelay: 250 * time.Millisecond,
	}
}

// Option configures the SDK client.
type Option func(*options)

// WithTimeout sets the per-call timeout. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithRetry sets how often a call is attempted after transport failures.
// Tool errors, such as an unknown project, are returned without retrying.
func WithRetry(maxAttempts int, initialDelay time.Duration) Option {
	return func(o *options) {
		if maxAttempts < 1 {
			maxAttempts = 1
		}
		o.maxAttempts = maxAttempts
		o.initialDelay = initialDelay
	}
}

// WithSchemaCheck makes Initialize fail when the server's tool schema has a
// major version this SDK does not support.
func WithSchemaCheck() Option {
	return func(o *options) { o.checkSchema = true }
}
