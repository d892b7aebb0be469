package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		level   string
		verbose bool
		want    zapcore.Level
	}{
		{"warn", "warn", false, zapcore.WarnLevel},
		{"bad level falls back to info", "loud", false, zapcore.InfoLevel},
		{"verbose wins", "error", true, zapcore.DebugLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := New(tt.level, tt.verbose)
			require.NoError(t, err)
			assert.True(t, log.Core().Enabled(tt.want))
			if tt.want > zapcore.DebugLevel {
				assert.False(t, log.Core().Enabled(tt.want-1))
			}
		})
	}
}

func TestOrNop(t *testing.T) {
	t.Parallel()
	assert.NotNil(t, OrNop(nil))
}
