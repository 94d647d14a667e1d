// Package config handles configuration loading for mender.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for mender.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Run       RunConfig       `mapstructure:"run"`
	Budgets   BudgetsConfig   `mapstructure:"budgets"`
	Weights   WeightsConfig   `mapstructure:"weights"`
	TUI       TUIConfig       `mapstructure:"tui"`
	Seed      SeedConfig      `mapstructure:"seed"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	// Model is the Claude model used by the planner and all sub-agents.
	Model string `mapstructure:"model"`
	// UseBedrock routes calls through AWS Bedrock.
	UseBedrock bool   `mapstructure:"use_bedrock"`
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
}

// RunConfig holds loop-level limits for one run.
type RunConfig struct {
	// CostCeiling is the run budget in adapter cost units (0 disables).
	CostCeiling float64 `mapstructure:"cost_ceiling"`
	// MaxSteps hard-caps the number of dispatched actions (0 disables).
	MaxSteps int `mapstructure:"max_steps"`
	// StuckWindow is how many recent actions repetition is judged over.
	StuckWindow int `mapstructure:"stuck_window"`
	// StuckThreshold is how many repeats of one action trigger the advisor.
	StuckThreshold int `mapstructure:"stuck_threshold"`
	// HistoryWindow is how many recent steps the planner sees.
	HistoryWindow int `mapstructure:"history_window"`
	// AgentMaxIterations caps API calls per sub-agent invocation.
	AgentMaxIterations int `mapstructure:"agent_max_iterations"`
}

// BudgetsConfig holds per-capability wall-clock budgets.
type BudgetsConfig struct {
	Probe        time.Duration `mapstructure:"probe"`
	Locator      time.Duration `mapstructure:"locator"`
	Editor       time.Duration `mapstructure:"editor"`
	TestExecutor time.Duration `mapstructure:"test_executor"`
	VCS          time.Duration `mapstructure:"vcs"`
	Advisor      time.Duration `mapstructure:"advisor"`
}

// WeightsConfig holds per-capability cost weights.
type WeightsConfig struct {
	Probe        float64 `mapstructure:"probe"`
	Locator      float64 `mapstructure:"locator"`
	Editor       float64 `mapstructure:"editor"`
	TestExecutor float64 `mapstructure:"test_executor"`
	VCS          float64 `mapstructure:"vcs"`
	Advisor      float64 `mapstructure:"advisor"`
}

// TUIConfig holds display settings.
type TUIConfig struct {
	RefreshRate time.Duration `mapstructure:"refresh_rate"`
}

// SeedConfig holds environment facts the operator knows up front, usually
// from a project .mender.yaml; they spare the probe a first discovery pass.
type SeedConfig struct {
	Build    string   `mapstructure:"build"`
	Test     string   `mapstructure:"test"`
	Run      string   `mapstructure:"run"`
	Lint     string   `mapstructure:"lint"`
	Packages []string `mapstructure:"packages"`
}

// Empty reports whether no seed facts were configured.
func (s SeedConfig) Empty() bool {
	return s.Build == "" && s.Test == "" && s.Run == "" && s.Lint == "" && len(s.Packages) == 0
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY)
// 2. Project config (.mender.yaml in current directory or parent)
// 3. User config (~/.config/mender/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific file.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(filepath.Join(userConfigDir, "config.yaml"))

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("anthropic.use_bedrock", cfg.Anthropic.UseBedrock)
	v.Set("anthropic.aws_region", cfg.Anthropic.AWSRegion)
	v.Set("anthropic.aws_profile", cfg.Anthropic.AWSProfile)
	v.Set("run.cost_ceiling", cfg.Run.CostCeiling)
	v.Set("run.max_steps", cfg.Run.MaxSteps)
	v.Set("run.stuck_window", cfg.Run.StuckWindow)
	v.Set("run.stuck_threshold", cfg.Run.StuckThreshold)
	v.Set("run.history_window", cfg.Run.HistoryWindow)
	v.Set("run.agent_max_iterations", cfg.Run.AgentMaxIterations)
	v.Set("budgets.probe", cfg.Budgets.Probe.String())
	v.Set("budgets.locator", cfg.Budgets.Locator.String())
	v.Set("budgets.editor", cfg.Budgets.Editor.String())
	v.Set("budgets.test_executor", cfg.Budgets.TestExecutor.String())
	v.Set("budgets.vcs", cfg.Budgets.VCS.String())
	v.Set("budgets.advisor", cfg.Budgets.Advisor.String())
	v.Set("weights.probe", cfg.Weights.Probe)
	v.Set("weights.locator", cfg.Weights.Locator)
	v.Set("weights.editor", cfg.Weights.Editor)
	v.Set("weights.test_executor", cfg.Weights.TestExecutor)
	v.Set("weights.vcs", cfg.Weights.VCS)
	v.Set("weights.advisor", cfg.Weights.Advisor)
	v.Set("tui.refresh_rate", cfg.TUI.RefreshRate.String())

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "")
	v.SetDefault("anthropic.use_bedrock", false)

	v.SetDefault("run.cost_ceiling", 50.0)
	v.SetDefault("run.max_steps", 60)
	v.SetDefault("run.stuck_window", 10)
	v.SetDefault("run.stuck_threshold", 3)
	v.SetDefault("run.history_window", 12)
	v.SetDefault("run.agent_max_iterations", 50)

	v.SetDefault("budgets.probe", "5m")
	v.SetDefault("budgets.locator", "5m")
	v.SetDefault("budgets.editor", "15m")
	v.SetDefault("budgets.test_executor", "15m")
	v.SetDefault("budgets.vcs", "5m")
	v.SetDefault("budgets.advisor", "3m")

	v.SetDefault("weights.probe", 1.0)
	v.SetDefault("weights.locator", 1.0)
	v.SetDefault("weights.editor", 3.0)
	v.SetDefault("weights.test_executor", 2.0)
	v.SetDefault("weights.vcs", 1.0)
	v.SetDefault("weights.advisor", 1.0)

	v.SetDefault("tui.refresh_rate", "100ms")
}

// getUserConfigDir returns the XDG config directory for mender.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "mender")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "mender")
	}
	return filepath.Join(home, ".config", "mender")
}

// findProjectConfig searches for .mender.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".mender.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}
	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Run: RunConfig{
			CostCeiling:        50,
			MaxSteps:           60,
			StuckWindow:        10,
			StuckThreshold:     3,
			HistoryWindow:      12,
			AgentMaxIterations: 50,
		},
		Budgets: BudgetsConfig{
			Probe:        5 * time.Minute,
			Locator:      5 * time.Minute,
			Editor:       15 * time.Minute,
			TestExecutor: 15 * time.Minute,
			VCS:          5 * time.Minute,
			Advisor:      3 * time.Minute,
		},
		Weights: WeightsConfig{
			Probe:        1,
			Locator:      1,
			Editor:       3,
			TestExecutor: 2,
			VCS:          1,
			Advisor:      1,
		},
		TUI: TUIConfig{
			RefreshRate: 100 * time.Millisecond,
		},
	}
}
