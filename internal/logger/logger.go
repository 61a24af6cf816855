package logger

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup builds the process logger: human-readable console output on stdout plus
// JSON lines in a size-rotated file. It also becomes zerolog's global logger and
// the sink of the standard library logger.
// If the file cannot be opened only stdout is used.
func Setup(filename, level string, maxSizeMB int64, maxBackups int) (zerolog.Logger, io.Closer) {
	zerolog.TimeFieldFormat = time.RFC3339
	console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "2006-01-02 15:04:05"}

	var (
		out    io.Writer = console
		closer io.Closer = nopCloser{}
	)
	rotator := NewRotator(filename, maxSizeMB*1024*1024, maxBackups)
	if err := rotator.Open(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file, using stdout only: %v\n", err)
	} else {
		out = zerolog.MultiLevelWriter(console, rotator)
		closer = rotator
	}

	l := zerolog.New(out).Level(ParseLevel(level)).With().Timestamp().Logger()
	log.Logger = l
	stdlog.SetFlags(0)
	stdlog.SetOutput(l)
	return l, closer
}

// ParseLevel accepts zerolog level names in any case; unknown values mean info.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Rotator implements io.Writer and handles log file rotation based on size.
// Backups are named <file>.1 (newest) through <file>.<MaxBackups>.
type Rotator struct {
	Filename   string
	MaxSize    int64 // Bytes
	MaxBackups int
	file       *os.File
	size       int64
	mu         sync.Mutex
}

// NewRotator returns an unopened Rotator. Write opens it lazily.
func NewRotator(filename string, maxSize int64, maxBackups int) *Rotator {
	return &Rotator{Filename: filename, MaxSize: maxSize, MaxBackups: maxBackups}
}

// Open opens the current log file, appending to it if it exists.
func (r *Rotator) Open() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.openExistingOrNew()
}

func (r *Rotator) openExistingOrNew() error {
	info, err := os.Stat(r.Filename)
	if os.IsNotExist(err) {
		return r.openNew()
	}
	if err != nil {
		return err
	}

	f, err := os.OpenFile(r.Filename, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	r.file = f
	r.size = info.Size()
	return nil
}

func (r *Rotator) openNew() error {
	f, err := os.OpenFile(r.Filename, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	r.file = f
	r.size = 0
	return nil
}

// Write satisfies the io.Writer interface. It checks size and rotates if needed.
func (r *Rotator) Write(p []byte) (n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		if err = r.openExistingOrNew(); err != nil {
			return 0, err
		}
	}

	if r.MaxSize > 0 && r.size > 0 && r.size+int64(len(p)) > r.MaxSize {
		if err := r.rotate(); err != nil {
			// Keep writing to whatever file is open rather than losing the line.
			fmt.Fprintf(os.Stderr, "Log rotation failed: %v\n", err)
		}
	}

	n, err = r.file.Write(p)
	r.size += int64(n)
	return n, err
}

// Close closes the current file.
func (r *Rotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// rotate shifts <file>.i to <file>.i+1, moves the live file to <file>.1 and reopens.
func (r *Rotator) rotate() error {
	if r.file != nil {
		r.file.Close()
		r.file = nil
	}

	if r.MaxBackups < 1 {
		return r.openNew()
	}

	for i := r.MaxBackups - 1; i >= 1; i-- {
		oldPath := fmt.Sprintf("%s.%d", r.Filename, i)
		if _, err := os.Stat(oldPath); os.IsNotExist(err) {
			continue
		}
		if err := os.Rename(oldPath, fmt.Sprintf("%s.%d", r.Filename, i+1)); err != nil {
			return err
		}
	}

	if _, err := os.Stat(r.Filename); err == nil {
		if err := os.Rename(r.Filename, r.Filename+".1"); err != nil {
			return err
		}
	}

	return r.openNew()
}
