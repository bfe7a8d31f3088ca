package whatsapp

import (
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/soyeahso/wadesk/internal/logging"
)

// waLogger routes whatsmeow's logs into the wadesk logger. The library is
// chatty, so its info and debug lines are demoted one level.
type waLogger struct {
	log *logging.Logger
}

func newWALogger(log *logging.Logger) waLog.Logger {
	return waLogger{log: log}
}

func (w waLogger) Errorf(msg string, args ...any) { w.log.Error().Msgf(msg, args...) }
func (w waLogger) Warnf(msg string, args ...any)  { w.log.Warn().Msgf(msg, args...) }
func (w waLogger) Infof(msg string, args ...any)  { w.log.Debug().Msgf(msg, args...) }
func (w waLogger) Debugf(msg string, args ...any) { w.log.Trace().Msgf(msg, args...) }

func (w waLogger) Sub(module string) waLog.Logger {
	return waLogger{log: w.log.With("module", module)}
}
