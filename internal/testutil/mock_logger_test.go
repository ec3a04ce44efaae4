package testutil_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/caselight/caselight/internal/infrastructure/monitoring/logging"
	"github.com/caselight/caselight/internal/testutil"
)

func TestMockLogger(t *testing.T) {
	logger := testutil.NewMockLogger()

	logger.Info("test info", logging.String("key", "value"))

	messages := logger.GetMessages()
	assert.Len(t, messages, 1)
	assert.Equal(t, "info", messages[0].Level)
	assert.Equal(t, "test info", messages[0].Message)

	logger.Clear()
	assert.Len(t, logger.GetMessages(), 0)

	logger.Error("test error")
	assert.True(t, logger.HasMessage("error", "test error"))
	assert.False(t, logger.HasMessage("info", "test info"))
}

func TestMockLogger_CountContaining(t *testing.T) {
	logger := testutil.NewMockLogger()

	logger.Warn("message suppressed by safety filter")
	logger.Warn("alert suppressed by safety filter")
	logger.Info("suppressed but at info level")

	assert.Equal(t, 2, logger.CountContaining("warn", "suppressed"))
	assert.Equal(t, 0, logger.CountContaining("error", "suppressed"))
}

func TestMockLogger_ImplementsLogger(t *testing.T) {
	var _ logging.Logger = testutil.NewMockLogger()
}
