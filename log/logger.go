package log

import (
	"os"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/patrickmn/go-cache"
)

var loggerCache *cache.Cache

const loggerCacheExpiry = 6 * time.Hour

func init() {
	loggerCache = cache.New(loggerCacheExpiry, 10*time.Minute)
}

// AddContext permanently attaches key-value context to the logger for this
// request ID. Any future logging for the same request ID includes it.
func AddContext(requestID string, keyvals ...interface{}) {
	_ = loggerCache.Add(requestID, kitlog.With(getLogger(requestID), keyvals...), loggerCacheExpiry)
}

func Log(requestID string, message string, keyvals ...interface{}) {
	_ = kitlog.With(getLogger(requestID), "msg", message).Log(keyvals...)
}

// LogNoRequestID is for situations where no request ID is available. Use
// sparingly and put as much context as possible into the message itself.
func LogNoRequestID(message string, keyvals ...interface{}) {
	_ = kitlog.With(newLogger(), "msg", message).Log(keyvals...)
}

func LogError(requestID string, message string, err error, keyvals ...interface{}) {
	_ = kitlog.With(getLogger(requestID), "msg", message, "err", err.Error()).Log(keyvals...)
}

// Fatal logs the error and exits. Only for startup failures.
func Fatal(err error) {
	_ = kitlog.With(newLogger(), "msg", "fatal error").Log("err", err.Error())
	os.Exit(1)
}

func getLogger(requestID string) kitlog.Logger {
	if logger, found := loggerCache.Get(requestID); found {
		return logger.(kitlog.Logger)
	}
	logger := kitlog.With(newLogger(), "request_id", requestID)
	_ = loggerCache.Add(requestID, logger, loggerCacheExpiry)
	return logger
}

func newLogger() kitlog.Logger {
	logger := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stderr))
	return kitlog.With(logger, "ts", kitlog.DefaultTimestampUTC)
}
