package serialmux

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/missionmap/internal/timeutil"
)

// MockSerialPort replays fixture lines as if a robot controller were
// streaming them, and records every command written to it.
type MockSerialPort struct {
	r *io.PipeReader
	w *io.PipeWriter

	mu      sync.Mutex
	written bytes.Buffer
	closed  bool
	done    chan struct{}
}

// NewMockSerialMux creates a SerialMux whose port replays lines, one per
// tick of clock at the given interval. With loop set the fixture restarts
// from the top after the last line; otherwise the port reports EOF.
func NewMockSerialMux(lines []string, interval time.Duration, clock timeutil.Clock, loop bool) *SerialMux[*MockSerialPort] {
	port := NewMockSerialPort()
	go port.replay(lines, interval, clock, loop)
	return NewSerialMux(port)
}

// NewMockSerialPort returns a port with nothing to read until replay or
// Feed writes to it.
func NewMockSerialPort() *MockSerialPort {
	r, w := io.Pipe()
	return &MockSerialPort{r: r, w: w, done: make(chan struct{})}
}

// ReadFixtureLines splits fixture data into non-blank, non-comment lines.
func ReadFixtureLines(data []byte) []string {
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

func (m *MockSerialPort) replay(lines []string, interval time.Duration, clock timeutil.Clock, loop bool) {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	for i := 0; ; i++ {
		if i >= len(lines) {
			if !loop || len(lines) == 0 {
				_ = m.w.Close()
				return
			}
			i = 0
		}
		select {
		case <-ticker.C():
		case <-m.done:
			return
		}
		if err := m.Feed(lines[i]); err != nil {
			return
		}
	}
}

// Feed makes line readable from the port. It blocks until the reader
// consumes it.
func (m *MockSerialPort) Feed(line string) error {
	_, err := m.w.Write([]byte(line + "\n"))
	return err
}

func (m *MockSerialPort) Read(p []byte) (int, error) {
	return m.r.Read(p)
}

func (m *MockSerialPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, errors.New("serial port closed")
	}
	return m.written.Write(p)
}

// Written returns every command written so far.
func (m *MockSerialPort) Written() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.written.String()
}

func (m *MockSerialPort) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.done)
	_ = m.w.Close()
	return m.r.Close()
}
