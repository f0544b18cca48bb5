package core

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// ProductionLogger implements Logger on top of logrus.
//
// Configuration priority:
//  1. Explicit options (highest)
//  2. Environment variables (TRIPMIND_LOG_LEVEL, TRIPMIND_LOG_FORMAT)
//  3. Auto-detection (JSON format inside Kubernetes)
//  4. Defaults (info level, text format)
type ProductionLogger struct {
	entry *logrus.Entry
}

// LoggerOptions configures NewProductionLogger.
type LoggerOptions struct {
	Level     string
	Format    string // "json" or "text"
	Component string
	Output    io.Writer
}

// NewProductionLogger creates a logrus-backed structured logger.
func NewProductionLogger(opts LoggerOptions) *ProductionLogger {
	l := logrus.New()

	if opts.Output != nil {
		l.SetOutput(opts.Output)
	}

	level := opts.Level
	if level == "" {
		level = os.Getenv("TRIPMIND_LOG_LEVEL")
	}
	parsed, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		parsed = logrus.InfoLevel
	}
	l.SetLevel(parsed)

	format := opts.Format
	if format == "" {
		format = os.Getenv("TRIPMIND_LOG_FORMAT")
	}
	if format == "" && os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		// JSON in-cluster for log aggregation
		format = "json"
	}
	if format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	entry := logrus.NewEntry(l)
	if opts.Component != "" {
		entry = entry.WithField("component", opts.Component)
	}
	return &ProductionLogger{entry: entry}
}

// WithComponent returns a logger that tags every entry with the component name.
func (p *ProductionLogger) WithComponent(component string) *ProductionLogger {
	return &ProductionLogger{entry: p.entry.WithField("component", component)}
}

func (p *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	p.entry.WithFields(logrus.Fields(fields)).Info(msg)
}

func (p *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	p.entry.WithFields(logrus.Fields(fields)).Error(msg)
}

func (p *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	p.entry.WithFields(logrus.Fields(fields)).Warn(msg)
}

func (p *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	p.entry.WithFields(logrus.Fields(fields)).Debug(msg)
}
