// Package enginelog provides the engine's dual-sink structured logger
// (SPEC_FULL.md §4.15): an append-only structured-text stream and an
// append-only serialized-record stream, both built on zap, matching the
// gateway's *zap.Logger field idiom generalized to two sinks instead of
// one.
package enginelog

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Tag names the single category a log line belongs to.
type Tag string

const (
	TagIteration   Tag = "iteration"
	TagExploration Tag = "exploration"
	TagPruning     Tag = "pruning"
	TagModel       Tag = "model"
	TagGradBoost   Tag = "grad_boost_update"
	TagSGD         Tag = "sgd"
	TagCommand     Tag = "command"
	TagDataScore   Tag = "data_score"
)

// Options configures the two sinks. Either path may be empty to disable
// that sink; both disabled means Logger discards everything.
type Options struct {
	TextLogPath   string
	RecordLogPath string
	LogTimestamp  bool
	ClearOnOpen   bool
}

// Logger wraps two independent *zap.Logger sinks: text (human-readable
// console encoding) and record (JSON encoding, one object per line).
type Logger struct {
	text   *zap.Logger
	record *zap.Logger
}

// New builds a Logger from opts. A nil *zap.Logger is substituted with
// zap.NewNop() for any disabled sink so callers never nil-check.
func New(opts Options) (*Logger, error) {
	l := &Logger{text: zap.NewNop(), record: zap.NewNop()}

	if opts.TextLogPath != "" {
		textLogger, err := newSink(opts.TextLogPath, opts.ClearOnOpen, opts.LogTimestamp, textEncoder)
		if err != nil {
			return nil, err
		}
		l.text = textLogger
	}
	if opts.RecordLogPath != "" {
		recordLogger, err := newSink(opts.RecordLogPath, opts.ClearOnOpen, opts.LogTimestamp, recordEncoder)
		if err != nil {
			return nil, err
		}
		l.record = recordLogger
	}
	return l, nil
}

func textEncoder(withTimestamp bool) zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	if !withTimestamp {
		cfg.TimeKey = ""
	}
	return zapcore.NewConsoleEncoder(cfg)
}

func recordEncoder(withTimestamp bool) zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	if !withTimestamp {
		cfg.TimeKey = ""
	}
	return zapcore.NewJSONEncoder(cfg)
}

func newSink(path string, clearOnOpen, withTimestamp bool, encoderFor func(bool) zapcore.Encoder) (*zap.Logger, error) {
	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if clearOnOpen {
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, err
	}
	core := zapcore.NewCore(encoderFor(withTimestamp), zapcore.AddSync(f), zapcore.InfoLevel)
	return zap.New(core), nil
}

// Log writes one structured entry to both sinks, tagged with exactly one
// Tag (SPEC_FULL.md §6).
func (l *Logger) Log(tag Tag, msg string, fields ...zap.Field) {
	all := append([]zap.Field{zap.String("tag", string(tag))}, fields...)
	l.text.Info(msg, all...)
	l.record.Info(msg, all...)
}

// Sync flushes both underlying sinks.
func (l *Logger) Sync() error {
	_ = l.text.Sync()
	return l.record.Sync()
}
