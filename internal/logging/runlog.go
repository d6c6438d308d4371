package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// RunLog is the log file of one frontier run, <dir>/<run name>.log.
type RunLog struct {
	*Logger
	Path string
	file *os.File
}

// NewRunLog creates dir if needed and opens the log file of run name in it.
func NewRunLog(dir, name string, level LogLevel) (*RunLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, name+".log")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &RunLog{
		Logger: New(level, file).WithField("run", name),
		Path:   path,
		file:   file,
	}, nil
}

// Zap returns a *zap.Logger that writes to the run file and, when service is
// not nil, to the service log as well.
func (r *RunLog) Zap(service *Logger) *zap.Logger {
	if service == nil {
		return NewZapLogger(r.Logger)
	}
	return zap.New(zapcore.NewTee(NewZapAdapter(r.Logger), NewZapAdapter(service)))
}

// Close closes the run file.
func (r *RunLog) Close() error {
	return r.file.Close()
}
