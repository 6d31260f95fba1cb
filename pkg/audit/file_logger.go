package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// FileLogger appends events to a JSONL file with size-based rotation.
type FileLogger struct {
	basePath string
	file     *os.File
	mu       sync.Mutex
	encoder  *json.Encoder
	maxSize  int64
	maxFiles int

	// onRotate receives the path of each rotated-out file, used to
	// hand finished segments to the S3 archiver.
	onRotate func(path string)
}

// FileLoggerConfig configures the file logger
type FileLoggerConfig struct {
	// Path is the directory holding the audit trail.
	Path string
	// MaxSize is the rotation threshold in bytes (default 50MB).
	MaxSize int64
	// MaxFiles is the number of rotated segments kept (default 10).
	MaxFiles int
	// OnRotate is called with each rotated segment's path.
	OnRotate func(path string)
}

const currentSegment = "audit.log"

// NewFileLogger creates a file-based audit logger.
func NewFileLogger(config FileLoggerConfig) (*FileLogger, error) {
	if err := os.MkdirAll(config.Path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	logger := &FileLogger{
		basePath: config.Path,
		maxSize:  config.MaxSize,
		maxFiles: config.MaxFiles,
		onRotate: config.OnRotate,
	}
	if logger.maxSize == 0 {
		logger.maxSize = 50 * 1024 * 1024
	}
	if logger.maxFiles == 0 {
		logger.maxFiles = 10
	}

	if err := logger.openSegment(); err != nil {
		return nil, err
	}
	return logger, nil
}

// Log appends one event, rotating first if the segment is full.
func (l *FileLogger) Log(_ context.Context, event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		if info, err := l.file.Stat(); err == nil && info.Size() >= l.maxSize {
			if err := l.rotate(); err != nil {
				return fmt.Errorf("failed to rotate audit log: %w", err)
			}
		}
	}

	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

// Close closes the current segment.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// ReadEvents reads up to count events from the current segment.
// count <= 0 reads everything. Test and debugging helper.
func (l *FileLogger) ReadEvents(count int) ([]*Event, error) {
	file, err := os.Open(filepath.Join(l.basePath, currentSegment))
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer file.Close()

	var events []*Event
	decoder := json.NewDecoder(file)
	for {
		var event Event
		if err := decoder.Decode(&event); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("failed to decode audit log entry: %w", err)
		}
		events = append(events, &event)
		if count > 0 && len(events) >= count {
			break
		}
	}
	return events, nil
}

func (l *FileLogger) openSegment() error {
	file, err := os.OpenFile(filepath.Join(l.basePath, currentSegment),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open audit log file: %w", err)
	}
	l.file = file
	l.encoder = json.NewEncoder(file)
	return nil
}

func (l *FileLogger) rotate() error {
	current := filepath.Join(l.basePath, currentSegment)

	if l.file != nil {
		l.file.Close()
		l.file = nil
	}

	rotated := filepath.Join(l.basePath,
		fmt.Sprintf("audit-%s.log", time.Now().UTC().Format("2006-01-02-15-04-05")))
	if err := os.Rename(current, rotated); err != nil {
		return fmt.Errorf("failed to rename audit segment: %w", err)
	}

	if l.onRotate != nil {
		l.onRotate(rotated)
	}
	if err := l.cleanup(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to cleanup old audit segments: %v\n", err)
	}

	return l.openSegment()
}

func (l *FileLogger) cleanup() error {
	files, err := filepath.Glob(filepath.Join(l.basePath, "audit-*.log"))
	if err != nil {
		return err
	}
	if len(files) <= l.maxFiles {
		return nil
	}
	// Rotated names sort chronologically.
	sort.Strings(files)
	for _, file := range files[:len(files)-l.maxFiles] {
		if err := os.Remove(file); err != nil {
			fmt.Fprintf(os.Stderr, "failed to remove old audit segment %s: %v\n", file, err)
		}
	}
	return nil
}
