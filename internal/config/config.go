package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Configuration is the full agent configuration, loadable from a YAML file
// and E2E_AGENT_* environment variables.
type Configuration struct {
	Agent   Agent   `mapstructure:"agent"`
	Backend Backend `mapstructure:"backend"`
	Tunnel  Tunnel  `mapstructure:"tunnel"`
	Server  Server  `mapstructure:"server"`

	LogLevel  string `mapstructure:"log_level" default:"info"`
	LogFormat string `mapstructure:"log_format" default:"console"`
}

// Agent configures the run behavior.
type Agent struct {
	RepoPath      string `mapstructure:"repo_path" default:"."`
	DefaultBranch string `mapstructure:"default_branch" default:"main"`

	// Port is the local port the application under test listens on.
	Port int `mapstructure:"port" default:"3000"`

	ProbeReadiness   bool          `mapstructure:"probe_readiness" default:"true"`
	ReadinessTimeout time.Duration `mapstructure:"readiness_timeout" default:"30s"`

	PollInterval time.Duration `mapstructure:"poll_interval" default:"5s"`
	MaxWait      time.Duration `mapstructure:"max_wait" default:"10m"`

	// Parallelism caps concurrent suites in PR sequence mode.
	Parallelism int `mapstructure:"parallelism" default:"1"`

	DownloadArtifacts bool   `mapstructure:"download_artifacts" default:"false"`
	DownloadDir       string `mapstructure:"download_dir" default:"e2e-artifacts"`

	// DataFolder holds the run-history database. Empty disables history.
	DataFolder string `mapstructure:"data_folder"`
}

// Backend configures the remote e2e service connection.
type Backend struct {
	URL       string `mapstructure:"url" default:"http://localhost:7443"`
	TokenFile string `mapstructure:"token_file"`
}

// Tunnel configures the tunnel provider.
type Tunnel struct {
	ProviderURL string `mapstructure:"provider_url" default:"https://api.tunnelgate.dev"`
	AuthToken   string `mapstructure:"auth_token"`
	Subdomain   string `mapstructure:"subdomain"`
}

// Server configures the local status API.
type Server struct {
	Enabled  bool `mapstructure:"enabled" default:"false"`
	HTTPPort int  `mapstructure:"http_port" default:"8400"`
}

// configKeys lists every known key. Viper only resolves environment
// variables for keys it has seen, so each one is bound explicitly.
var configKeys = []string{
	"agent.repo_path",
	"agent.default_branch",
	"agent.port",
	"agent.probe_readiness",
	"agent.readiness_timeout",
	"agent.poll_interval",
	"agent.max_wait",
	"agent.parallelism",
	"agent.download_artifacts",
	"agent.download_dir",
	"agent.data_folder",
	"backend.url",
	"backend.token_file",
	"tunnel.provider_url",
	"tunnel.auth_token",
	"tunnel.subdomain",
	"server.enabled",
	"server.http_port",
	"log_level",
	"log_format",
}

// flagBindings maps configuration keys to the command-line flags that can
// override them.
var flagBindings = map[string]string{
	"agent.repo_path": "repo",
	"agent.port":      "port",
	"log_level":       "log-level",
}

// Load reads the configuration: defaults first, then the optional config
// file, then environment overrides, then explicitly set command-line flags.
func Load(configFile string, flags *pflag.FlagSet) (*Configuration, error) {
	cfg := &Configuration{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply config defaults: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("E2E_AGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range configKeys {
		v.MustBindEnv(key)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	if flags != nil {
		for key, name := range flagBindings {
			// Only flags the user actually set may override the file.
			if f := flags.Lookup(name); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations no run could use.
func (c *Configuration) Validate() error {
	if c.Agent.Port <= 0 || c.Agent.Port > 65535 {
		return fmt.Errorf("invalid agent port: %d", c.Agent.Port)
	}
	if c.Backend.URL == "" {
		return fmt.Errorf("backend url must not be empty")
	}
	if c.Agent.Parallelism < 0 {
		return fmt.Errorf("parallelism must not be negative")
	}
	return nil
}
