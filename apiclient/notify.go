package apiclient

import "github.com/rs/zerolog"

// Notifier receives user-facing notifications: request errors, session
// expiry, realtime connection problems. It is the headless counterpart
// of a UI toast.
type Notifier interface {
	Info(msg string)
	Error(msg string)
}

// LogNotifier writes notifications to a zerolog logger. It is the
// default Notifier.
type LogNotifier struct {
	Logger zerolog.Logger
}

var _ Notifier = LogNotifier{}

func (n LogNotifier) Info(msg string) {
	n.Logger.Info().Msg(msg)
}

func (n LogNotifier) Error(msg string) {
	n.Logger.Error().Msg(msg)
}
