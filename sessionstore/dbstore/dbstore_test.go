package dbstore

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 30, cfg.RetentionDays)
	assert.Equal(t, "@hourly", cfg.CleanupCron)
	assert.True(t, cfg.AutoCleanup)
}

func TestNewWithoutAutoCleanupNeverTouchesPool(t *testing.T) {
	store, err := New(nil, Config{AutoCleanup: false}, zerolog.Nop())
	require.NoError(t, err)
	assert.NoError(t, store.Close())
}

func TestNewRejectsInvalidCronExpression(t *testing.T) {
	_, err := New(nil, Config{AutoCleanup: true, CleanupCron: "not a cron expression"}, zerolog.Nop())
	assert.Error(t, err)
}

func TestNewStartsAndStopsCleanupScheduler(t *testing.T) {
	store, err := New(nil, Config{AutoCleanup: true, CleanupCron: "@every 1h", RetentionDays: 30}, zerolog.Nop())
	require.NoError(t, err)
	assert.NoError(t, store.Close())
}

// TestNewAcceptsSixFieldCronExpression pins the config package's default
// schedule (a seconds-field expression): the scheduler must be built with
// cron.WithSeconds(), or this errors with "expected exactly 5 fields".
func TestNewAcceptsSixFieldCronExpression(t *testing.T) {
	store, err := New(nil, Config{AutoCleanup: true, CleanupCron: "0 0 * * * *", RetentionDays: 30}, zerolog.Nop())
	require.NoError(t, err)
	assert.NoError(t, store.Close())
}
