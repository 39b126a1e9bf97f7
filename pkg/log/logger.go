package log

// Logger defines a standard interface for logging.
// This allows decoupling from specific logging libraries.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})

	// WithField returns a logger that attaches the given key/value pair
	// to every entry it emits.
	WithField(key string, value interface{}) Logger
}
