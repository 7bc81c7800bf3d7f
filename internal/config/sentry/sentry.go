package sentry

import (
	"time"

	sentry "github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"
)

// Config contains sentry configuration, loaded as part of the logging
// section of config.toml.
type Config struct {
	DSN         string `toml:"sentry_dsn" split_words:"true"`
	Environment string `toml:"sentry_environment" split_words:"true"`
}

// ConfigureSentry configures the sentry DSN
func ConfigureSentry(version string, sentryConf Config) {
	if sentryConf.DSN == "" {
		return
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         sentryConf.DSN,
		Environment: sentryConf.Environment,
		Release:     "v" + version,
	})
	if err != nil {
		log.WithError(err).Warn("unable to initialize sentry client")
		return
	}

	log.WithField("dsn", sentryConf.DSN).Debug("Using sentry logging")
}

// Flush waits for buffered events to be sent out. Invocations of gitmirror
// are short-lived, so this runs right before the process exits.
func Flush(timeout time.Duration) {
	sentry.Flush(timeout)
}

// CaptureProblem forwards a fatal mirror condition to sentry. It is
// best-effort: when sentry was never configured this is a no-op.
func CaptureProblem(message string, tags map[string]string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		sentry.CaptureMessage(message)
	})
}
