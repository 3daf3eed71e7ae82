package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seedgate/seedgate/pkg/policy"
)

const testConfig = `
server:
  host: 127.0.0.1
  port: 8080
global:
  clients:
    storage_cap_gb: 500
    required_labels: [seedgate]
    up_rate_threshold_mbps: 2
  trackers:
    ratio_buffer: 0.05
    clear_errors: ["Unregistered torrent"]
clients:
  qbit:
    type: qbittorrent
    url: http://localhost:8080
    user: admin
    password: secret
    storage_cap_gb: 1000
    up_rate_cap_mbps: 100
    delete_data: false
    timeout: 10s
  deluge:
    type: deluge
    host: localhost
    port: 58846
    login: localclient
    password: secret
trackers:
  red:
    label: red
    requirements:
      - min_seed_ratio: 1.0
      - min_seed_hours: 72
    storage_cap_gb: 200
    download_slots: 3
  ops:
    label: ops
    enabled: false
    requirements:
      - min_seed_ratio: 1
        min_seed_hours: 24
    ratio_buffer: 0
    slot_scope: label
notifications:
  skip_empty_run: true
  service:
    discord:
      webhook_url: https://discord.example/webhook
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, testConfig))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr())
	assert.Equal(t, []string{"deluge", "qbit"}, cfg.ClientNames())
	assert.Equal(t, []string{"ops", "red"}, cfg.TrackerNames())
	assert.True(t, cfg.Notifications.SkipEmptyRun)
	assert.True(t, cfg.Notifications.Service.Discord.Enabled())
}

func TestConfiguration_ClientSettings(t *testing.T) {
	cfg, err := Load(writeConfig(t, testConfig))
	require.NoError(t, err)

	qbit, err := cfg.ClientSettings("qbit")
	require.NoError(t, err)
	assert.Equal(t, "qbit", qbit.Name())
	// entry value wins over the global default
	assert.Equal(t, int64(1000*humanize.GiByte), qbit.StorageCap())
	assert.Equal(t, []string{"seedgate"}, qbit.RequiredLabels())
	assert.Equal(t, int64(100_000_000), qbit.UpRateCap())
	assert.Equal(t, int64(0), qbit.DownRateCap())
	assert.Equal(t, int64(2_000_000), qbit.UpRateThresholdBps)
	assert.False(t, qbit.DeleteData)
	assert.Equal(t, 10*time.Second, qbit.Timeout)

	deluge, err := cfg.ClientSettings("deluge")
	require.NoError(t, err)
	assert.Equal(t, int64(500*humanize.GiByte), deluge.StorageCap())
	assert.True(t, deluge.DeleteData)
	assert.Equal(t, 30*time.Second, deluge.Timeout)
}

func TestConfiguration_TrackerPolicy(t *testing.T) {
	cfg, err := Load(writeConfig(t, testConfig))
	require.NoError(t, err)

	red, err := cfg.TrackerPolicy("red")
	require.NoError(t, err)
	assert.True(t, red.Enabled)
	assert.Equal(t, "red", red.Label)
	assert.Equal(t, 0.05, red.RatioBuffer)
	assert.Equal(t, []string{"Unregistered torrent"}, red.ClearErrors)
	assert.Equal(t, int64(200*humanize.GiByte), red.StorageCap)
	assert.Equal(t, 3, red.DownloadSlots)
	assert.Equal(t, []policy.RequirementSet{
		{{Kind: policy.KindMinSeedRatio, Value: 1}},
		{{Kind: policy.KindMinSeedHours, Value: 72}},
	}, red.RequirementSets)

	ops, err := cfg.TrackerPolicy("ops")
	require.NoError(t, err)
	assert.False(t, ops.Enabled)
	assert.Equal(t, 0.0, ops.RatioBuffer)
	assert.Equal(t, policy.SlotScopeLabel, ops.SlotScope)
	assert.Len(t, ops.RequirementSets, 1)

	trackers, err := cfg.BuildTrackers()
	require.NoError(t, err)
	require.Len(t, trackers, 2)
	assert.Equal(t, "ops", trackers[0].Name())
	assert.Equal(t, "red", trackers[1].Name())
}

func TestConfiguration_BuildClients(t *testing.T) {
	cfg, err := Load(writeConfig(t, testConfig))
	require.NoError(t, err)

	clients, err := cfg.BuildClients()
	require.NoError(t, err)
	require.Len(t, clients, 2)
	assert.Equal(t, "qBittorrent", clients["qbit"].Type())
	assert.Equal(t, "Deluge", clients["deluge"].Type())
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("SEEDGATE__SERVER__PORT", "9090")
	t.Setenv("SEEDGATE__CLIENTS__QBIT__STORAGE_CAP_GB", "10")

	cfg, err := Load(writeConfig(t, testConfig))
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)

	qbit, err := cfg.ClientSettings("qbit")
	require.NoError(t, err)
	assert.Equal(t, int64(10*humanize.GiByte), qbit.StorageCap())
}

func TestLoad_EnvOverrideMixedCaseName(t *testing.T) {
	t.Setenv("SEEDGATE__CLIENTS__QBIT__STORAGE_CAP_GB", "10")
	t.Setenv("SEEDGATE__TRACKERS__RED__UNSATISFIED_CAP", "7")

	cfg, err := Load(writeConfig(t, `
clients:
  QBit:
    type: qbittorrent
    url: http://localhost:8080
    storage_cap_gb: 500
trackers:
  Red:
    label: red
    unsatisfied_cap: 3
    requirements:
      - min_seed_hours: 72
`))
	require.NoError(t, err)

	// the override lands on the existing entry instead of a lower case twin
	assert.Equal(t, []string{"QBit"}, cfg.ClientNames())
	assert.Equal(t, []string{"Red"}, cfg.TrackerNames())

	qbit, err := cfg.ClientSettings("QBit")
	require.NoError(t, err)
	assert.Equal(t, int64(10*humanize.GiByte), qbit.StorageCap())

	red, err := cfg.TrackerConfig("Red")
	require.NoError(t, err)
	assert.Equal(t, 7, red.UnsatisfiedCap)
}

func TestEnvKeyMapper(t *testing.T) {
	mapper := envKeyMapper([]string{"clients.QBit.url", "server.port"})

	assert.Equal(t, "clients.QBit.storage_cap_gb", mapper("SEEDGATE__CLIENTS__QBIT__STORAGE_CAP_GB"))
	assert.Equal(t, "clients.QBit.url", mapper("SEEDGATE__CLIENTS__QBIT__URL"))
	assert.Equal(t, "server.port", mapper("SEEDGATE__SERVER__PORT"))
	assert.Equal(t, "clients.deluge.host", mapper("SEEDGATE__CLIENTS__DELUGE__HOST"))
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		config string
	}{
		{
			name:   "no_clients",
			config: "trackers: {}\n",
		},
		{
			name: "unknown_requirement",
			config: `
clients:
  qbit: {type: qbittorrent, url: http://localhost}
trackers:
  red:
    label: red
    requirements:
      - min_seed_days: 3
`,
		},
		{
			name: "malformed_requirement",
			config: `
clients:
  qbit: {type: qbittorrent, url: http://localhost}
trackers:
  red:
    label: red
    requirements:
      - min_seed_ratio: lots
`,
		},
		{
			name: "unknown_client_type",
			config: `
clients:
  rt: {type: rtorrent, url: http://localhost}
`,
		},
		{
			name: "missing_client_type",
			config: `
clients:
  qbit: {url: http://localhost}
`,
		},
		{
			name: "missing_label",
			config: `
clients:
  qbit: {type: qbittorrent, url: http://localhost}
trackers:
  red:
    requirements:
      - min_seed_ratio: 1
`,
		},
		{
			name: "negative_cap",
			config: `
clients:
  qbit: {type: qbittorrent, url: http://localhost, storage_cap_gb: -1}
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.config))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrConfiguration)
}
