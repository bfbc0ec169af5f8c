// Package utils holds the filesystem and logging helpers shared by the drivesync worker.
package utils

import (
	"bytes"
	"io"
	"log/slog"
	"sync"
	"time"
)

// LogInterceptor is an io.Writer that prefixes every complete line with a
// running line number and a timestamp before passing it on to target.
// Incomplete trailing data is held back until the next newline or Close.
type LogInterceptor struct {
	target  io.Writer
	now     func() time.Time
	mu      sync.Mutex
	line    uint64
	pending bytes.Buffer
}

func NewLogInterceptor(target io.Writer) *LogInterceptor {
	return &LogInterceptor{target: target, now: time.Now}
}

// Write reports len(p) on success so callers never see a short write.
func (i *LogInterceptor) Write(p []byte) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.pending.Write(p)
	for {
		idx := bytes.IndexByte(i.pending.Bytes(), '\n')
		if idx < 0 {
			break
		}
		line := i.pending.Next(idx + 1)
		if err := i.writeLine(line); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

// Close flushes any unterminated line and closes target if it is an io.Closer.
func (i *LogInterceptor) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.pending.Len() > 0 {
		rest := append(i.pending.Bytes(), '\n')
		i.pending.Reset()
		if err := i.writeLine(rest); err != nil {
			return err
		}
	}
	if c, ok := i.target.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (i *LogInterceptor) writeLine(line []byte) error {
	i.line++
	prefix := slog.Uint64("line", i.line).String() + " " +
		slog.String("time", i.now().Format(time.RFC3339)).String() + " "

	buf := make([]byte, 0, len(prefix)+len(line))
	buf = append(buf, prefix...)
	buf = append(buf, line...)
	_, err := i.target.Write(buf)
	return err
}
