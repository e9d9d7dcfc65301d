package observability

import (
	"time"

	"github.com/getsentry/sentry-go"
)

// Pending events get this long to leave the process on shutdown; on a
// serverless runtime anything slower is cut off by the platform anyway.
const sentryFlushTimeout = 2 * time.Second

// InitSentry is a no-op without a DSN, so local runs and tests skip the
// exporter entirely.
func InitSentry(dsn, environment, release string) error {
	if dsn == "" {
		return nil
	}

	return sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		Release:          release,
		AttachStacktrace: true,
	})
}

func FlushSentry() {
	sentry.Flush(sentryFlushTimeout)
}
