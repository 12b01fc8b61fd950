package logger_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/saulfrancisco-ruizacevedo/go-graphview/logger"
	"github.com/saulfrancisco-ruizacevedo/go-graphview/logger/console"
)

type recorder struct {
	lines []string
}

func (r *recorder) Debug(message string, keyvals ...any) { r.lines = append(r.lines, "debug:"+message) }
func (r *recorder) Info(message string, keyvals ...any)  { r.lines = append(r.lines, "info:"+message) }
func (r *recorder) Warn(message string, keyvals ...any)  { r.lines = append(r.lines, "warn:"+message) }
func (r *recorder) Error(message string, keyvals ...any) { r.lines = append(r.lines, "error:"+message) }
func (r *recorder) Fatal(message string, keyvals ...any) { r.lines = append(r.lines, "fatal:"+message) }

func TestDispatch(t *testing.T) {
	t.Cleanup(logger.Reset)

	// No backends: calls are dropped.
	logger.Info("dropped")

	a, b := &recorder{}, &recorder{}
	logger.Init(a, b)
	logger.Debug("one")
	logger.Info("two")
	logger.Warn("three")
	logger.Error("four")

	want := []string{"debug:one", "info:two", "warn:three", "error:four"}
	assert.Equal(t, want, a.lines)
	assert.Equal(t, want, b.lines)
}

func TestConsoleLogger(t *testing.T) {
	t.Cleanup(logger.Reset)

	var buf bytes.Buffer
	logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{Output: &buf}))

	logger.Debug("hidden")
	logger.Info("query finished", "nodes", 3)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "query finished")
	assert.Contains(t, out, "nodes=3")
}
