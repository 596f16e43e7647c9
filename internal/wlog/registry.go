package wlog

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

const defaultLevel = logrus.InfoLevel

var levelByName = map[string]logrus.Level{
	"trace":   logrus.TraceLevel,
	"debug":   logrus.DebugLevel,
	"info":    logrus.InfoLevel,
	"warning": logrus.WarnLevel,
	"warn":    logrus.WarnLevel,
	"error":   logrus.ErrorLevel,
	"fatal":   logrus.FatalLevel,
	"panic":   logrus.PanicLevel,
}

// ListLevels returns a comma separated, quoted list of valid level names.
func ListLevels() string {
	str := ""
	for k := range levelByName {
		if str != "" {
			str += ", "
		}
		str += fmt.Sprintf("%q", k)
	}
	return str
}

// Registry holds, per subsystem, the configured log level. It is built from
// a LEVELSPEC string that is either a bare level name (applied to every
// subsystem) or a comma separated "subsystem=level" list.
type Registry struct {
	mu                sync.Mutex
	levelBySubsystem  map[string]logrus.Level
	loggerBySubsystem map[string]*logrus.Logger
	defaultLevel      logrus.Level
	hasDefault        bool
}

// NewRegistry parses spec into a Registry. An empty spec yields the default
// level ("info") for every subsystem.
func NewRegistry(spec string) (*Registry, error) {
	r := &Registry{
		levelBySubsystem:  make(map[string]logrus.Level),
		loggerBySubsystem: make(map[string]*logrus.Logger),
	}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return r, nil
	}
	if !strings.Contains(spec, "=") {
		level, ok := levelByName[spec]
		if !ok {
			return nil, fmt.Errorf("invalid log level %q: must be one of %s", spec, ListLevels())
		}
		r.defaultLevel = level
		r.hasDefault = true
		return r, nil
	}
	for _, pair := range strings.Split(spec, ",") {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid log level format %q", pair)
		}
		level, ok := levelByName[parts[1]]
		if !ok {
			return nil, fmt.Errorf("invalid log level for %q: %q", parts[0], parts[1])
		}
		r.levelBySubsystem[parts[0]] = level
	}
	return r, nil
}

// LevelFor returns the configured level for subsystem, falling back to the
// registry's default (or the global default) when unset.
func (r *Registry) LevelFor(subsystem string) logrus.Level {
	r.mu.Lock()
	defer r.mu.Unlock()
	if level, ok := r.levelBySubsystem[subsystem]; ok {
		return level
	}
	if r.hasDefault {
		return r.defaultLevel
	}
	return defaultLevel
}

func (r *Registry) register(subsystem string, logger *logrus.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loggerBySubsystem[subsystem] = logger
}
