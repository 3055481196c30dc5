package engineconfig_test

import (
	"os"
	"path/filepath"
	"testing"

	"sensei/internal/engineconfig"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPassesValidate(t *testing.T) {
	assert.NoError(t, engineconfig.Default().Validate())
}

func TestLoadOverlaysTOMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
worker_count = 8
storage_backend = "mysql"

[regularization.base]
l1 = 0.01
`), 0o644))

	cfg, err := engineconfig.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.WorkerCount)
	assert.Equal(t, "mysql", cfg.StorageBackend)
	assert.Equal(t, 0.01, cfg.Regularization.Base.L1)
	require.NoError(t, cfg.Validate())
}

func TestLoadAppliesEnvOverrideAfterFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.toml")
	require.NoError(t, os.WriteFile(path, []byte(`worker_count = 8`), 0o644))

	t.Setenv("SMF_ENGINE_WORKER_COUNT", "16")
	cfg, err := engineconfig.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.WorkerCount)
}

func TestValidateRejectsNegativeInertiaFactor(t *testing.T) {
	cfg := engineconfig.Default()
	cfg.InertiaFactor = -1
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownStorageBackend(t *testing.T) {
	cfg := engineconfig.Default()
	cfg.StorageBackend = "redis"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsSameLogPathForBothSinks(t *testing.T) {
	cfg := engineconfig.Default()
	cfg.Logging.TextLogPath = "/tmp/engine.log"
	cfg.Logging.RecordLogPath = "/tmp/engine.log"
	assert.Error(t, cfg.Validate())
}

func TestLoadMissingFileReturnsConfigurationError(t *testing.T) {
	_, err := engineconfig.Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
