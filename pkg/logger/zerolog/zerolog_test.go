package zerolog

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
)

func TestSetupLevel(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	Setup("DEBUG")
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	Setup("nonsense")
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())

	Setup("")
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).With().Str("trace_id", "abc").Logger()
	ctx := logger.WithContext(context.Background())

	FromContext(ctx).Info().Msg("hello")
	assert.Contains(t, buf.String(), `"trace_id":"abc"`)
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	prev := zerolog.DefaultContextLogger
	t.Cleanup(func() { zerolog.DefaultContextLogger = prev })
	zerolog.DefaultContextLogger = &log.Logger

	assert.Same(t, &log.Logger, FromContext(context.Background()))
}
