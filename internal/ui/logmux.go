package ui

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/harshul/microrun/internal/project"
)

// DefaultLogLines is how many lines each project keeps.
const DefaultLogLines = 1000

// LogMultiplexer keeps the recent output of every project, keyed by project
// id, and optionally forwards each line to a listener and a shared console.
type LogMultiplexer struct {
	mu         sync.RWMutex
	buffers    map[string]*LogBuffer
	writers    map[string]*ProjectWriter
	maxLines   int
	timeFormat string
	now        func() time.Time

	notify func(id, line string)
	tee    io.Writer
	teeMu  sync.Mutex
}

// NewLogMultiplexer creates a multiplexer keeping maxLines per project.
func NewLogMultiplexer(maxLines int) *LogMultiplexer {
	if maxLines <= 0 {
		maxLines = DefaultLogLines
	}
	return &LogMultiplexer{
		buffers:    make(map[string]*LogBuffer),
		writers:    make(map[string]*ProjectWriter),
		maxLines:   maxLines,
		timeFormat: "15:04:05",
		now:        time.Now,
	}
}

// SetNotify registers fn to receive every stored line.
func (lm *LogMultiplexer) SetNotify(fn func(id, line string)) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.notify = fn
}

// SetTee also copies every line to w, prefixed with the project name.
func (lm *LogMultiplexer) SetTee(w io.Writer) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.tee = w
}

// Writer returns the line-buffered writer for a project. The same writer is
// returned for repeated calls with the same id.
func (lm *LogMultiplexer) Writer(id string) io.Writer {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if writer, exists := lm.writers[id]; exists {
		return writer
	}
	writer := &ProjectWriter{
		multiplexer: lm,
		id:          id,
		buffer:      make([]byte, 0, 4096),
	}
	lm.writers[id] = writer
	return writer
}

// Lines returns everything kept for a project.
func (lm *LogMultiplexer) Lines(id string) []string {
	if b := lm.buffer(id, false); b != nil {
		return b.GetAll()
	}
	return nil
}

// Last returns at most n recent lines of a project.
func (lm *LogMultiplexer) Last(id string, n int) []string {
	if b := lm.buffer(id, false); b != nil {
		return b.GetLast(n)
	}
	return nil
}

// Clear drops the kept lines of a project.
func (lm *LogMultiplexer) Clear(id string) {
	if b := lm.buffer(id, false); b != nil {
		b.Clear()
	}
}

// Flush emits partial lines still held by the writers.
func (lm *LogMultiplexer) Flush() {
	lm.mu.RLock()
	writers := make([]*ProjectWriter, 0, len(lm.writers))
	for _, w := range lm.writers {
		writers = append(writers, w)
	}
	lm.mu.RUnlock()
	for _, w := range writers {
		w.Flush()
	}
}

func (lm *LogMultiplexer) buffer(id string, create bool) *LogBuffer {
	lm.mu.RLock()
	b := lm.buffers[id]
	lm.mu.RUnlock()
	if b != nil || !create {
		return b
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()
	if b = lm.buffers[id]; b == nil {
		b = NewLogBuffer(lm.maxLines)
		lm.buffers[id] = b
	}
	return b
}

// appendLog stores one line of a project.
func (lm *LogMultiplexer) appendLog(id string, line string) {
	formatted := "[" + lm.now().Format(lm.timeFormat) + "] " + line
	lm.buffer(id, true).Append(formatted)

	lm.mu.RLock()
	notify, tee := lm.notify, lm.tee
	lm.mu.RUnlock()

	if tee != nil {
		lm.teeMu.Lock()
		fmt.Fprintf(tee, "%s %s\n", projectPrefix(id), line)
		lm.teeMu.Unlock()
	}
	if notify != nil {
		notify(id, formatted)
	}
}

func projectPrefix(id string) string {
	return dimStyle.Render("[" + project.Name(id) + "]")
}

// ProjectWriter is an io.Writer that captures output for one project.
type ProjectWriter struct {
	multiplexer *LogMultiplexer
	id          string
	buffer      []byte
	mu          sync.Mutex
}

// Write implements io.Writer. Only complete lines are emitted; a trailing
// carriage return is dropped.
func (pw *ProjectWriter) Write(p []byte) (n int, err error) {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	pw.buffer = append(pw.buffer, p...)
	for {
		idx := bytes.IndexByte(pw.buffer, '\n')
		if idx < 0 {
			break
		}
		line := string(bytes.TrimRight(pw.buffer[:idx], "\r"))
		pw.buffer = pw.buffer[idx+1:]
		if line != "" {
			pw.multiplexer.appendLog(pw.id, line)
		}
	}
	return len(p), nil
}

// Flush writes any remaining buffer content
func (pw *ProjectWriter) Flush() {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	if len(pw.buffer) > 0 {
		line := string(pw.buffer)
		pw.buffer = pw.buffer[:0]
		pw.multiplexer.appendLog(pw.id, line)
	}
}

// LogBuffer provides a simple ring buffer for logs
type LogBuffer struct {
	lines    []string
	maxLines int
	mu       sync.RWMutex
}

// NewLogBuffer creates a new log buffer
func NewLogBuffer(maxLines int) *LogBuffer {
	return &LogBuffer{
		lines:    make([]string, 0, maxLines),
		maxLines: maxLines,
	}
}

// Append adds a line to the buffer
func (lb *LogBuffer) Append(line string) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	if len(lb.lines) >= lb.maxLines {
		copy(lb.lines, lb.lines[1:])
		lb.lines = lb.lines[:len(lb.lines)-1]
	}
	lb.lines = append(lb.lines, line)
}

// GetAll returns all lines in the buffer
func (lb *LogBuffer) GetAll() []string {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	result := make([]string, len(lb.lines))
	copy(result, lb.lines)
	return result
}

// GetLast returns the last n lines
func (lb *LogBuffer) GetLast(n int) []string {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	if n <= 0 {
		return nil
	}
	if n >= len(lb.lines) {
		result := make([]string, len(lb.lines))
		copy(result, lb.lines)
		return result
	}
	result := make([]string, n)
	copy(result, lb.lines[len(lb.lines)-n:])
	return result
}

func (lb *LogBuffer) Clear() {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	lb.lines = lb.lines[:0]
}

func (lb *LogBuffer) Len() int {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	return len(lb.lines)
}
