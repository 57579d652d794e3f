package logging

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func TestDebug_DisabledInProduction(t *testing.T) {
	var buf bytes.Buffer

	logger := log.NewWithOptions(&buf, log.Options{
		ReportTimestamp: false,
		ReportCaller:    false,
	})
	logger.SetLevel(log.DebugLevel)

	appLogger := &AppLogger{
		logger: logger,
		debug:  false,
	}

	appLogger.Debug("debug message that should not appear")

	output := buf.String()
	if strings.Contains(output, "debug message that should not appear") {
		t.Errorf("Expected debug message to be suppressed in production mode, got: %s", output)
	}
}

func TestLogPerformance(t *testing.T) {
	logger, buf := NewTestLogger()

	start := time.Now()
	time.Sleep(1 * time.Millisecond)
	logger.LogPerformance("test_operation", start)

	output := buf.String()
	if !strings.Contains(output, "Performance") {
		t.Errorf("Expected log output to contain 'Performance', got: %s", output)
	}
	if !strings.Contains(output, "test_operation") {
		t.Errorf("Expected log output to contain operation name, got: %s", output)
	}
	if !strings.Contains(output, "duration") {
		t.Errorf("Expected log output to contain duration, got: %s", output)
	}
}

func TestLogCommand(t *testing.T) {
	logger, buf := NewTestLogger()

	logger.LogCommand("/tmp/project", "git", []string{"cherry-pick", "cutty/update"})

	output := buf.String()
	if !strings.Contains(output, "Running command") {
		t.Errorf("Expected log output to contain 'Running command', got: %s", output)
	}
	if !strings.Contains(output, "cherry-pick") {
		t.Errorf("Expected log output to contain the arguments, got: %s", output)
	}
}

func TestWith_CarriesFields(t *testing.T) {
	logger, buf := NewTestLogger()

	logger.With("provider", "git").Info("mounted")

	output := buf.String()
	if !strings.Contains(output, "provider=git") {
		t.Errorf("Expected log output to contain the bound field, got: %s", output)
	}
}

func TestNewWriterLogger_Verbosity(t *testing.T) {
	var buf bytes.Buffer

	quiet := NewWriterLogger(&buf, 0)
	quiet.Info("hidden info")
	if strings.Contains(buf.String(), "hidden info") {
		t.Errorf("Expected info to be suppressed at verbosity 0, got: %s", buf.String())
	}

	buf.Reset()
	verbose := NewWriterLogger(&buf, 2)
	verbose.Debug("visible debug")
	if !strings.Contains(buf.String(), "visible debug") {
		t.Errorf("Expected debug output at verbosity 2, got: %s", buf.String())
	}
}

func TestPackageLevelFunctions(t *testing.T) {
	defaultLogger = nil
	once = sync.Once{}

	t.Chdir(t.TempDir())
	t.Setenv("DEBUG", "1")

	Info("package level info")
	Warn("package level warn")
	Error("package level error")
	Debug("package level debug")

	start := time.Now()
	LogPerformance("package_operation", start)
}

func TestGetDefault_Singleton(t *testing.T) {
	defaultLogger = nil
	once = sync.Once{}

	logger1 := GetDefault()
	logger2 := GetDefault()

	if logger1 != logger2 {
		t.Error("Expected GetDefault() to return the same instance (singleton)")
	}
}

func BenchmarkInfo(b *testing.B) {
	logger, _ := NewTestLogger()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Info("benchmark message", "iteration", i)
	}
}

func BenchmarkDebug(b *testing.B) {
	logger, _ := NewTestLogger()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Debug("benchmark debug message", "iteration", i)
	}
}
