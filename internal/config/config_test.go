package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)
	c := s.Current()
	assert.True(t, c.DryRunDefault)
	assert.Equal(t, 200, c.SyncBatchSize)
	assert.Equal(t, 10, c.ReadinessMaxHops)
	assert.Equal(t, 24*time.Hour, c.IdempotencyTTL)
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ontocore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
sync_batch_size: 500
backlog_threshold_count: 10
allow_catalog_pair_merge: true
`), 0o600))

	s, err := Load(path)
	require.NoError(t, err)
	c := s.Current()
	assert.Equal(t, 500, c.SyncBatchSize)
	assert.Equal(t, 10, c.BacklogThresholdCount)
	assert.True(t, c.AllowCatalogPairMerge)
}

func TestDryRunDefaultCannotBeDisabled(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ontocore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`dry_run_default: false`), 0o600))

	s, err := Load(path)
	require.NoError(t, err)
	assert.True(t, s.Current().DryRunDefault, "dry_run_default must always resolve true regardless of file contents")
}

func TestLoadBootstrapMissingFileReturnsZeroValue(t *testing.T) {
	b, err := LoadBootstrap(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Empty(t, b.LedgerDSN)
}

func TestLoadBootstrapReadsLedgerDSN(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bootstrap.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ledger_dsn: dolt://root@localhost:3306/ontocore\n"), 0o600))

	b, err := LoadBootstrap(path)
	require.NoError(t, err)
	assert.Equal(t, "dolt://root@localhost:3306/ontocore", b.LedgerDSN)
}

func TestApplyLocalOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "local.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
ledger_dsn = "dolt://dev@localhost:3306/ontocore_dev"
otlp_endpoint = "localhost:4318"
`), 0o600))

	var got LocalOverride
	err := ApplyLocalOverride(path, func(lo LocalOverride) { got = lo })
	require.NoError(t, err)
	assert.Equal(t, "dolt://dev@localhost:3306/ontocore_dev", got.LedgerDSN)
	assert.Equal(t, "localhost:4318", got.OTLPEndpoint)
}

func TestApplyLocalOverrideMissingFileIsNoop(t *testing.T) {
	called := false
	err := ApplyLocalOverride(filepath.Join(t.TempDir(), "missing.toml"), func(LocalOverride) { called = true })
	require.NoError(t, err)
	assert.False(t, called)
}

func TestWatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ontocore.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sync_batch_size: 200\n"), 0o600))

	s, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, s.Watch())
	defer s.Close()

	require.NoError(t, os.WriteFile(path, []byte("sync_batch_size: 999\n"), 0o600))

	require.Eventually(t, func() bool {
		return s.Current().SyncBatchSize == 999
	}, 2*time.Second, 10*time.Millisecond)
}
