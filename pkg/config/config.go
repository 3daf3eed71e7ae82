package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/pkg/errors"

	"github.com/seedgate/seedgate/pkg/client"
	"github.com/seedgate/seedgate/pkg/logger"
	"github.com/seedgate/seedgate/pkg/policy"
	"github.com/seedgate/seedgate/pkg/stringutils"
)

const envPrefix = "SEEDGATE__"

var ErrConfiguration = errors.New("configuration error")

type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// GlobalConfig holds defaults copied into every client and tracker entry that does not set the key.
type GlobalConfig struct {
	Clients  map[string]interface{} `koanf:"clients"`
	Trackers map[string]interface{} `koanf:"trackers"`
}

type Configuration struct {
	Server        ServerConfig                      `koanf:"server"`
	Global        GlobalConfig                      `koanf:"global"`
	Clients       map[string]map[string]interface{} `koanf:"clients"`
	Trackers      map[string]map[string]interface{} `koanf:"trackers"`
	Notifications NotificationsConfig               `koanf:"notifications"`
}

type ClientConfig struct {
	Type                string        `koanf:"type"`
	StorageCapGB        float64       `koanf:"storage_cap_gb"`
	RequiredLabels      []string      `koanf:"required_labels"`
	UpRateCapMbps       float64       `koanf:"up_rate_cap_mbps"`
	DownRateCapMbps     float64       `koanf:"down_rate_cap_mbps"`
	UpRateThresholdMbps float64       `koanf:"up_rate_threshold_mbps"`
	DeleteData          *bool         `koanf:"delete_data"`
	Timeout             time.Duration `koanf:"timeout"`
}

type TrackerConfig struct {
	Enabled            *bool                    `koanf:"enabled"`
	Label              string                   `koanf:"label"`
	Requirements       []map[string]interface{} `koanf:"requirements"`
	StorageCapGB       float64                  `koanf:"storage_cap_gb"`
	UnsatisfiedCap     int                      `koanf:"unsatisfied_cap"`
	DownloadSlots      int                      `koanf:"download_slots"`
	RatioBuffer        float64                  `koanf:"ratio_buffer"`
	SeedBufferHours    float64                  `koanf:"seed_buffer_hours"`
	ClearErrors        []string                 `koanf:"clear_errors"`
	ClearErrorPatterns []string                 `koanf:"clear_error_patterns"`
	Ignore             []string                 `koanf:"ignore"`
	SlotScope          string                   `koanf:"slot_scope"`
}

/* Vars */

var (
	cfgPath = ""

	Delimiter = "."
	Config    *Configuration

	// Internal
	log = logger.GetLogger("cfg")
)

/* Public */

// Init loads the configuration into the package Config.
func Init(configFilePath string) error {
	cfg, err := Load(configFilePath)
	if err != nil {
		return err
	}

	cfgPath = configFilePath
	Config = cfg
	return nil
}

// Load reads the yaml file, applies SEEDGATE__ environment overrides and validates the result.
func Load(configFilePath string) (*Configuration, error) {
	k := koanf.New(Delimiter)

	// load config
	if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("%w: load file: %w", ErrConfiguration, err)
	}

	// load environment variables, SEEDGATE__CLIENTS__QBIT__URL -> clients.qbit.url
	if err := k.Load(env.Provider(envPrefix, Delimiter, envKeyMapper(k.Keys())), nil); err != nil {
		return nil, fmt.Errorf("%w: load env: %w", ErrConfiguration, err)
	}

	cfg := &Configuration{
		Server: ServerConfig{Host: "0.0.0.0", Port: 7474},
	}

	// unmarshal config
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("%w: unmarshal: %w", ErrConfiguration, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// envKeyMapper turns an environment variable into a key path. Segments matching a key already loaded
// from the file take that key's spelling, so SEEDGATE__CLIENTS__QBIT__URL overrides clients.QBit.url.
func envKeyMapper(keys []string) func(string) string {
	known := make(map[string]string)
	for _, key := range keys {
		parts := strings.Split(key, Delimiter)
		for i := range parts {
			prefix := strings.Join(parts[:i+1], Delimiter)
			known[strings.ToLower(prefix)] = prefix
		}
	}

	return func(s string) string {
		path := strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", Delimiter)

		parts := strings.Split(path, Delimiter)
		for i := len(parts); i > 0; i-- {
			if prefix, ok := known[strings.Join(parts[:i], Delimiter)]; ok {
				return strings.Join(append([]string{prefix}, parts[i:]...), Delimiter)
			}
		}
		return path
	}
}

// Validate builds every client and tracker so errors surface at startup.
func (c *Configuration) Validate() error {
	if len(c.Clients) == 0 {
		return fmt.Errorf("%w: no clients configured", ErrConfiguration)
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: invalid server port: %d", ErrConfiguration, c.Server.Port)
	}

	if _, err := c.BuildClients(); err != nil {
		return err
	}

	if _, err := c.BuildTrackers(); err != nil {
		return err
	}

	return nil
}

func (c *Configuration) ClientNames() []string {
	return sortedKeys(c.Clients)
}

func (c *Configuration) TrackerNames() []string {
	return sortedKeys(c.Trackers)
}

// ClientEntry returns the client entry merged with the global client defaults.
func (c *Configuration) ClientEntry(name string) (map[string]interface{}, bool) {
	raw, ok := c.Clients[name]
	if !ok {
		return nil, false
	}
	return merge(raw, c.Global.Clients), true
}

// TrackerEntry returns the tracker entry merged with the global tracker defaults.
func (c *Configuration) TrackerEntry(name string) (map[string]interface{}, bool) {
	raw, ok := c.Trackers[name]
	if !ok {
		return nil, false
	}
	return merge(raw, c.Global.Trackers), true
}

func (c *Configuration) ClientConfig(name string) (*ClientConfig, error) {
	raw, ok := c.ClientEntry(name)
	if !ok {
		return nil, fmt.Errorf("%w: unknown client: %s", ErrConfiguration, name)
	}

	cc := new(ClientConfig)
	if err := decode(raw, cc); err != nil {
		return nil, wrap(err, "client %s", name)
	}

	if cc.Type == "" {
		return nil, fmt.Errorf("%w: client %s: type is required", ErrConfiguration, name)
	}

	return cc, nil
}

func (c *Configuration) ClientSettings(name string) (client.Settings, error) {
	cc, err := c.ClientConfig(name)
	if err != nil {
		return client.Settings{}, err
	}

	if cc.StorageCapGB < 0 || cc.UpRateCapMbps < 0 || cc.DownRateCapMbps < 0 || cc.UpRateThresholdMbps < 0 {
		return client.Settings{}, fmt.Errorf("%w: client %s: caps must not be negative", ErrConfiguration, name)
	}

	deleteData := true
	if cc.DeleteData != nil {
		deleteData = *cc.DeleteData
	}

	timeout := cc.Timeout
	if timeout <= 0 {
		timeout = client.DefaultTimeout
	}

	return client.Settings{
		ClientName:         name,
		StorageCapBytes:    gibToBytes(cc.StorageCapGB),
		Labels:             cc.RequiredLabels,
		UpRateCapBps:       mbpsToBps(cc.UpRateCapMbps),
		DownRateCapBps:     mbpsToBps(cc.DownRateCapMbps),
		UpRateThresholdBps: mbpsToBps(cc.UpRateThresholdMbps),
		DeleteData:         deleteData,
		Timeout:            timeout,
	}, nil
}

// BuildClient constructs the backend adapter of a client. It does not connect.
func (c *Configuration) BuildClient(name string) (client.Interface, error) {
	settings, err := c.ClientSettings(name)
	if err != nil {
		return nil, err
	}

	raw, _ := c.ClientEntry(name)
	cc, _ := c.ClientConfig(name)

	clientImpl, err := client.NewClient(cc.Type, settings, raw)
	if err != nil {
		return nil, wrap(err, "client %s", name)
	}

	return clientImpl, nil
}

func (c *Configuration) BuildClients() (map[string]client.Interface, error) {
	clients := make(map[string]client.Interface, len(c.Clients))
	for _, name := range c.ClientNames() {
		clientImpl, err := c.BuildClient(name)
		if err != nil {
			return nil, err
		}
		clients[name] = clientImpl
	}
	return clients, nil
}

func (c *Configuration) TrackerConfig(name string) (*TrackerConfig, error) {
	raw, ok := c.TrackerEntry(name)
	if !ok {
		return nil, fmt.Errorf("%w: unknown tracker: %s", ErrConfiguration, name)
	}

	tc := new(TrackerConfig)
	if err := decode(raw, tc); err != nil {
		return nil, wrap(err, "tracker %s", name)
	}

	return tc, nil
}

func (c *Configuration) TrackerPolicy(name string) (policy.Config, error) {
	tc, err := c.TrackerConfig(name)
	if err != nil {
		return policy.Config{}, err
	}

	sets, err := policy.ParseRequirementSets(tc.Requirements)
	if err != nil {
		return policy.Config{}, wrap(err, "tracker %s", name)
	}

	if tc.StorageCapGB < 0 || tc.UnsatisfiedCap < 0 || tc.DownloadSlots < 0 || tc.RatioBuffer < 0 || tc.SeedBufferHours < 0 {
		return policy.Config{}, fmt.Errorf("%w: tracker %s: caps and buffers must not be negative", ErrConfiguration, name)
	}

	enabled := true
	if tc.Enabled != nil {
		enabled = *tc.Enabled
	}

	return policy.Config{
		Enabled:            enabled,
		Label:              tc.Label,
		RequirementSets:    sets,
		StorageCap:         gibToBytes(tc.StorageCapGB),
		UnsatisfiedCap:     tc.UnsatisfiedCap,
		DownloadSlots:      tc.DownloadSlots,
		RatioBuffer:        tc.RatioBuffer,
		SeedBufferHours:    tc.SeedBufferHours,
		ClearErrors:        tc.ClearErrors,
		ClearErrorPatterns: tc.ClearErrorPatterns,
		Ignore:             tc.Ignore,
		SlotScope:          policy.SlotScope(strings.ToLower(tc.SlotScope)),
	}, nil
}

func (c *Configuration) BuildTracker(name string, opts ...policy.Option) (*policy.Tracker, error) {
	cfg, err := c.TrackerPolicy(name)
	if err != nil {
		return nil, err
	}

	t, err := policy.New(name, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	return t, nil
}

func (c *Configuration) BuildTrackers(opts ...policy.Option) ([]*policy.Tracker, error) {
	trackers := make([]*policy.Tracker, 0, len(c.Trackers))
	for _, name := range c.TrackerNames() {
		t, err := c.BuildTracker(name, opts...)
		if err != nil {
			return nil, err
		}
		trackers = append(trackers, t)
	}
	return trackers, nil
}

func ShowUsing() {
	log.Infof("Using %s = %q", stringutils.LeftJust("CONFIG", " ", 10), cfgPath)
}

/* Private */

// merge returns a copy of entry with the keys of defaults it does not set.
func merge(entry map[string]interface{}, defaults map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(entry)+len(defaults))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range entry {
		merged[k] = v
	}
	return merged
}

func decode(raw map[string]interface{}, out interface{}) error {
	k := koanf.New(Delimiter)
	if err := k.Load(confmap.Provider(raw, ""), nil); err != nil {
		return err
	}
	return k.Unmarshal("", out)
}

func wrap(err error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %w", ErrConfiguration, errors.Wrapf(err, format, args...))
}

func sortedKeys(m map[string]map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func gibToBytes(gib float64) int64 {
	return int64(gib * humanize.GiByte)
}

func mbpsToBps(mbps float64) int64 {
	return int64(mbps * 1e6)
}
