// Package logger provides the package-level structured logger used outside
// of a gin request context (startup, the breaker registry, background
// dispatch). Per-request code should prefer gmw.GetLogger(c).
package logger

import "github.com/Laisky/zap"

// Logger is the process-wide fallback structured logger.
var Logger *zap.Logger

func init() {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	Logger = l
}
