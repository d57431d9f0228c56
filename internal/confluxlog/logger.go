// Package confluxlog provides the logging facade used across every Conflux
// component. It implements dragonboat's logger.ILogger interface with a
// custom formatter, so the same factory backs both dragonboat's internal
// logging and Conflux's own component loggers.
package confluxlog

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/lni/dragonboat/v4/logger"
)

// confluxLogger implements logger.ILogger with "LEVEL | name | message" formatting.
type confluxLogger struct {
	name   string
	level  logger.LogLevel
	logger *log.Logger
}

func (l *confluxLogger) SetLevel(level logger.LogLevel) {
	l.level = level
}

func (l *confluxLogger) Debugf(format string, args ...interface{}) {
	if l.level >= logger.DEBUG {
		l.log("DEBUG", format, args...)
	}
}

func (l *confluxLogger) Infof(format string, args ...interface{}) {
	if l.level >= logger.INFO {
		l.log("INFO", format, args...)
	}
}

func (l *confluxLogger) Warningf(format string, args ...interface{}) {
	if l.level >= logger.WARNING {
		l.log("WARN", format, args...)
	}
}

func (l *confluxLogger) Errorf(format string, args ...interface{}) {
	if l.level >= logger.ERROR {
		l.log("ERROR", format, args...)
	}
}

func (l *confluxLogger) Panicf(format string, args ...interface{}) {
	if l.level >= logger.CRITICAL {
		panic(fmt.Sprintf(format, args...))
	}
}

func (l *confluxLogger) log(levelStr, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	l.logger.Printf("%-5s | %-16s | %s", levelStr, l.name, message)
}

// Factory creates loggers for dragonboat's logger.SetLoggerFactory hook.
func Factory(pkgName string) logger.ILogger {
	stdLogger := log.New(os.Stdout, "", log.Ldate|log.Ltime)
	return &confluxLogger{
		name:   pkgName,
		level:  logger.INFO,
		logger: stdLogger,
	}
}

// ParseLevel converts a string level to logger.LogLevel.
func ParseLevel(level string) logger.LogLevel {
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

// componentLoggers are the names each Conflux component registers under, in
// addition to dragonboat's own internal loggers (raft, raftdb, rsm, transport,
// dragonboat, logdb).
var componentLoggers = []string{
	"store", "raftlog", "statemachine", "raftnode", "watchhub", "rpc", "gc",
}

var dragonboatLoggers = []string{
	"raft", "raftdb", "rsm", "transport", "dragonboat", "grpc", "util", "logdb",
}

// Init installs the Conflux logger factory as dragonboat's global factory and
// sets every known logger to level.
func Init(level string) {
	logger.SetLoggerFactory(Factory)
	parsed := ParseLevel(level)
	for _, name := range dragonboatLoggers {
		logger.GetLogger(name).SetLevel(parsed)
	}
	for _, name := range componentLoggers {
		logger.GetLogger(name).SetLevel(parsed)
	}
}

// Get returns (creating if necessary) the named component logger.
func Get(name string) logger.ILogger {
	return logger.GetLogger(name)
}
