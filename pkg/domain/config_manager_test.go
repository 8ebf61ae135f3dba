package domain

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigManager_Defaults(t *testing.T) {
	dir := t.TempDir()

	manager, err := newConfigManager(dir)
	require.NoError(t, err)

	config, err := manager.GetConfig(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "vaultbridge", config.ServiceName)
	assert.Equal(t, ":8081", config.HTTPAddress)
	assert.Equal(t, filepath.Join(dir, "vaultbridge.db"), config.DatabasePath)
	assert.Equal(t, 4, config.ReconcileConcurrency)
	assert.Equal(t, 30*time.Minute, config.SessionIdleTimeout())
	assert.False(t, manager.IsSetupComplete(context.Background()))
}

func TestConfigManager_EnvironmentOverrides(t *testing.T) {
	t.Setenv("VAULTBRIDGE_RECONCILE_CONCURRENCY", "9")
	t.Setenv("VAULTBRIDGE_SYNC_SCHEDULE", "@every 5m")

	manager, err := newConfigManager(t.TempDir())
	require.NoError(t, err)

	config, err := manager.GetConfig(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 9, config.ReconcileConcurrency)
	assert.Equal(t, "@every 5m", config.SyncSchedule)
}

func TestConfigManager_SaveAndReset(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	manager, err := newConfigManager(dir)
	require.NoError(t, err)

	config, err := manager.GetConfig(ctx)
	require.NoError(t, err)

	config.SealingKey = "AGE-SECRET-KEY-TEST"
	require.NoError(t, manager.SaveConfig(ctx, config))
	assert.True(t, manager.IsSetupComplete(ctx))

	_, err = os.Stat(filepath.Join(dir, "config.json"))
	require.NoError(t, err)

	reloaded, err := newConfigManager(dir)
	require.NoError(t, err)
	assert.True(t, reloaded.IsSetupComplete(ctx))

	require.NoError(t, reloaded.ResetConfig(ctx))
	assert.False(t, reloaded.IsSetupComplete(ctx))

	_, err = os.Stat(filepath.Join(dir, "config.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestConfigManager_ResetDropsValuesReadFromFile(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	writer, err := newConfigManager(dir)
	require.NoError(t, err)

	config, err := writer.GetConfig(ctx)
	require.NoError(t, err)

	config.SealingKey = "AGE-SECRET-KEY-FROM-FILE"
	config.HTTPAddress = ":9999"
	require.NoError(t, writer.SaveConfig(ctx, config))

	manager, err := newConfigManager(dir)
	require.NoError(t, err)
	require.NoError(t, manager.ResetConfig(ctx))

	reset, err := manager.GetConfig(ctx)
	require.NoError(t, err)
	assert.Empty(t, reset.SealingKey)
	assert.Equal(t, ":8081", reset.HTTPAddress)
	assert.Equal(t, filepath.Join(dir, "vaultbridge.db"), reset.DatabasePath)

	fresh, err := newConfigManager(dir)
	require.NoError(t, err)
	assert.False(t, fresh.IsSetupComplete(ctx))

	config.SealingKey = "AGE-SECRET-KEY-NEW"
	require.NoError(t, manager.SaveConfig(ctx, config))
	assert.True(t, manager.IsSetupComplete(ctx))
}
