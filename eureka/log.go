package eureka

import "go.uber.org/zap"

// logAdapter wraps the SugaredLogger so the rest of the package can take a
// possibly-nil *zap.SugaredLogger from AgentConfig and always get a usable
// logger back.
type logAdapter struct {
	s *zap.SugaredLogger
}

func newLogAdapter(l *zap.SugaredLogger) *logAdapter {
	if l == nil {
		if prod, err := zap.NewProduction(); err == nil {
			l = prod.Sugar()
		} else {
			l = zap.NewNop().Sugar()
		}
	}
	return &logAdapter{s: l}
}

func (l *logAdapter) Infof(format string, args ...interface{}) {
	l.s.Infof(format, args...)
}

func (l *logAdapter) Warnf(format string, args ...interface{}) {
	l.s.Warnf(format, args...)
}

func (l *logAdapter) Debugf(format string, args ...interface{}) {
	l.s.Debugf(format, args...)
}

func (l *logAdapter) Errorf(format string, args ...interface{}) {
	l.s.Errorf(format, args...)
}
