// Package logging provides the logger factory for the application.
// All packages obtain their logger through the dragonboat logger facility
// (logger.GetLogger); this package installs a custom formatter and wires
// log levels from the configuration.
package logging

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/lni/dragonboat/v4/logger"
)

// --------------------------------------------------------------------------
// Custom Logger (implements dragonboats logger.ILogger)
// --------------------------------------------------------------------------

// ddsLogger implements the ILogger interface with custom formatting
type ddsLogger struct {
	name   string
	level  logger.LogLevel
	logger *log.Logger
}

func (l *ddsLogger) SetLevel(level logger.LogLevel) {
	l.level = level
}

func (l *ddsLogger) Debugf(format string, args ...interface{}) {
	if l.level >= logger.DEBUG {
		l.log("DEBUG", format, args...)
	}
}

func (l *ddsLogger) Infof(format string, args ...interface{}) {
	if l.level >= logger.INFO {
		l.log("INFO", format, args...)
	}
}

func (l *ddsLogger) Warningf(format string, args ...interface{}) {
	if l.level >= logger.WARNING {
		l.log("WARN", format, args...)
	}
}

func (l *ddsLogger) Errorf(format string, args ...interface{}) {
	if l.level >= logger.ERROR {
		l.log("ERROR", format, args...)
	}
}

func (l *ddsLogger) Panicf(format string, args ...interface{}) {
	if l.level >= logger.CRITICAL {
		panic(fmt.Sprintf(format, args...))
	}
}

// log formats and writes a log message. this internal helper is used by the public methods
func (l *ddsLogger) log(levelStr string, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	l.logger.Printf("%-5s | %-15s | %s", levelStr, l.name, message)
}

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

// CreateLogger implements the dragonboat logger Factory interface
func CreateLogger(pkgName string) logger.ILogger {
	// Create standard logger with custom flags
	stdLogger := log.New(os.Stdout, "", log.Ldate|log.Ltime)

	return &ddsLogger{
		name:   pkgName,
		level:  logger.INFO,
		logger: stdLogger,
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// ParseLogLevel converts a string level to logger.LogLevel
func ParseLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG
	case "info":
		return logger.INFO
	case "warning", "warn":
		return logger.WARNING
	case "error":
		return logger.ERROR
	default:
		panic(fmt.Sprintf("invalid log level: %s. must be one of debug, info, warn, error", level))
	}
}

// --------------------------------------------------------------------------
// Logger initialization
// --------------------------------------------------------------------------

// InitLoggers installs the custom factory and configures all loggers
// (dragonboats internal facilities and this repos packages) with the given level.
func InitLoggers(logLevel string) {
	// Set as the global logger factory for Dragonboat
	logger.SetLoggerFactory(CreateLogger)

	level := ParseLogLevel(logLevel)

	// Configure Dragonboat loggers
	logger.GetLogger("raft").SetLevel(level)
	logger.GetLogger("raftdb").SetLevel(level)
	logger.GetLogger("rsm").SetLevel(level)
	logger.GetLogger("transport").SetLevel(level)
	logger.GetLogger("dragonboat").SetLevel(level)
	logger.GetLogger("grpc").SetLevel(level)
	logger.GetLogger("util").SetLevel(level)
	logger.GetLogger("logdb").SetLevel(level)

	// configure this repos loggers
	logger.GetLogger("arbor").SetLevel(level)
	logger.GetLogger("badgerdb").SetLevel(level)
	logger.GetLogger("sqlite").SetLevel(level)
	logger.GetLogger("store").SetLevel(level)
	logger.GetLogger("cache").SetLevel(level)
	logger.GetLogger("derivation").SetLevel(level)
	logger.GetLogger("verify").SetLevel(level)
	logger.GetLogger("worker").SetLevel(level)
}
