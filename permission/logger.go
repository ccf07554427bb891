package permission

import (
	"sync"

	"go.uber.org/zap"
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once
)

// Logger returns the permission package's logger instance.
// It uses a no-op logger by default. Grants and revocations are logged at
// Info level so a configured logger doubles as an audit trail.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
	})
	return logger
}

// SetLogger configures the permission package's logger.
// This must be called before any permission operations.
func SetLogger(l *zap.Logger) {
	logger = l
}
