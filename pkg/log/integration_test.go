package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/eegharmony/pkg/errors"
)

func TestTestLoggerLevelsAndFields(t *testing.T) {
	testLogger, buffer := NewTestLogger(LevelDebug)

	testLogger.Debug("debug message", "key1", "value1", "number", 42)
	testLogger.Info("info message", OperationKey, OperationLearn)
	testLogger.Warn("warning message", BatchKey, "siteB")
	testLogger.Error("error message", fmt.Errorf("boom"), ErrorCodeKey, ErrorConvergence)

	require.NotEmpty(t, buffer.String())
	for _, msg := range []string{"debug message", "info message", "warning message", "error message"} {
		assert.True(t, testLogger.ContainsMessage(msg), msg)
	}
	assert.True(t, testLogger.ContainsField("key1", "value1"))
	assert.True(t, testLogger.ContainsField("number", 42.0))
	assert.True(t, testLogger.ContainsField("error", "boom"))
}

func TestTestLoggerWith(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelDebug)

	contextLogger := testLogger.With(
		ModelNameKey, "EmpiricalBayesHarmonizer",
		ComponentKey, "harmonize",
	)
	contextLogger.Info("learned", BatchesKey, 3)

	assert.True(t, testLogger.ContainsField(ModelNameKey, "EmpiricalBayesHarmonizer"))
	assert.True(t, testLogger.ContainsField(ComponentKey, "harmonize"))
	assert.True(t, testLogger.ContainsField(BatchesKey, 3.0))
}

func TestTestLoggerEnabled(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelInfo)
	ctx := context.Background()

	assert.True(t, testLogger.Enabled(ctx, LevelInfo))
	assert.True(t, testLogger.Enabled(ctx, LevelError))
	assert.False(t, testLogger.Enabled(ctx, LevelDebug))

	testLogger.Debug("this should not appear")
	testLogger.Info("this should appear")
	assert.False(t, testLogger.ContainsMessage("this should not appear"))
	assert.True(t, testLogger.ContainsMessage("this should appear"))
}

func TestZerologLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(&buf, LevelInfo)

	logger.Debug("hidden")
	logger.With(ComponentKey, "riemann").Info("geodesic mean converged", IterationKey, 7, DimKey, 4)
	logger.Error("apply failed", errors.NewValidationError("site", "unknown batch level", "siteC"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "info", first["level"])
	assert.Equal(t, "riemann", first[ComponentKey])
	assert.Equal(t, 7.0, first[IterationKey])

	var second map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Contains(t, second["error"], "unknown batch level")

	assert.True(t, logger.Enabled(context.Background(), LevelWarn))
	assert.False(t, logger.Enabled(context.Background(), LevelDebug))
}

func TestConfigureAndWarningBridge(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Configure(&buf, "debug", false))
	defer SetProvider(NewZerologProvider(&bytes.Buffer{}, LevelInfo))
	defer errors.SetZerologWarnFunc(nil)

	errors.Warn(errors.NewFallbackPriorWarning("siteB", 1, "fewer than two observations"))

	out := buf.String()
	assert.Contains(t, out, `"type":"FallbackPriorWarning"`)
	assert.Contains(t, out, `"ml.component":"warnings"`)

	err := Configure(&buf, "verbose", false)
	assert.True(t, errors.IsValidation(err))
}

func TestTestLoggerProvider(t *testing.T) {
	provider, buffer := NewTestLoggerProvider(LevelDebug)
	SetProvider(provider)
	defer SetProvider(NewZerologProvider(&bytes.Buffer{}, LevelInfo))

	GetLogger().Info("provider test message")
	GetLoggerWithName("design").Info("named logger message")

	out := buffer.String()
	assert.Contains(t, out, "provider test message")
	assert.Contains(t, out, "named logger message")
	assert.True(t, provider.Logger().ContainsField(ComponentKey, "design"))
}

func TestConcurrentLogging(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelInfo)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				testLogger.Info("concurrent", "goroutine", id, "message", j)
			}
		}(i)
	}
	wg.Wait()

	entries, err := testLogger.GetLogEntries()
	require.NoError(t, err)
	assert.Len(t, entries, 20)
}

func TestLevelParsing(t *testing.T) {
	lvl, ok := ParseLevel("warn")
	assert.True(t, ok)
	assert.Equal(t, LevelWarn, lvl)
	assert.Equal(t, "WARN", lvl.String())

	_, ok = ParseLevel("trace")
	assert.False(t, ok)
	assert.Panics(t, func() { ToLogLevel("trace") })
}
