package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/mender/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify Mender configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/mender/config.yaml
Project-specific overrides can be placed in .mender.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
		case 1:
			displayConfigKey(cfg, args[0])
		default:
			setConfigKey(cfg, args[0], args[1])
		}
	},
}

func displayAllConfig(cfg *config.Config) {
	apiKeyDisplay := "(not set)"
	if cfg.Anthropic.APIKey != "" {
		apiKeyDisplay = "****"
	}

	fmt.Printf("anthropic.api_key: %s\n", apiKeyDisplay)
	fmt.Printf("anthropic.model: %s\n", cfg.Anthropic.Model)
	fmt.Printf("anthropic.use_bedrock: %t\n", cfg.Anthropic.UseBedrock)
	fmt.Printf("run.cost_ceiling: %g\n", cfg.Run.CostCeiling)
	fmt.Printf("run.max_steps: %d\n", cfg.Run.MaxSteps)
	fmt.Printf("run.stuck_window: %d\n", cfg.Run.StuckWindow)
	fmt.Printf("run.stuck_threshold: %d\n", cfg.Run.StuckThreshold)
	fmt.Printf("run.history_window: %d\n", cfg.Run.HistoryWindow)
	fmt.Printf("run.agent_max_iterations: %d\n", cfg.Run.AgentMaxIterations)
	fmt.Printf("budgets.probe: %s\n", cfg.Budgets.Probe)
	fmt.Printf("budgets.locator: %s\n", cfg.Budgets.Locator)
	fmt.Printf("budgets.editor: %s\n", cfg.Budgets.Editor)
	fmt.Printf("budgets.test_executor: %s\n", cfg.Budgets.TestExecutor)
	fmt.Printf("budgets.vcs: %s\n", cfg.Budgets.VCS)
	fmt.Printf("budgets.advisor: %s\n", cfg.Budgets.Advisor)
	fmt.Printf("weights.probe: %g\n", cfg.Weights.Probe)
	fmt.Printf("weights.locator: %g\n", cfg.Weights.Locator)
	fmt.Printf("weights.editor: %g\n", cfg.Weights.Editor)
	fmt.Printf("weights.test_executor: %g\n", cfg.Weights.TestExecutor)
	fmt.Printf("weights.vcs: %g\n", cfg.Weights.VCS)
	fmt.Printf("weights.advisor: %g\n", cfg.Weights.Advisor)
	fmt.Printf("tui.refresh_rate: %s\n", cfg.TUI.RefreshRate)
}

func displayConfigKey(cfg *config.Config, key string) {
	value, err := getConfigValue(cfg, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(value)
}

func setConfigKey(cfg *config.Config, key, value string) {
	if err := setConfigValue(cfg, key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Set %s = %s\n", key, value)
}

func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch key {
	case "anthropic.api_key":
		if cfg.Anthropic.APIKey == "" {
			return "(not set)", nil
		}
		return "****", nil
	case "anthropic.model":
		return cfg.Anthropic.Model, nil
	case "anthropic.use_bedrock":
		return strconv.FormatBool(cfg.Anthropic.UseBedrock), nil
	case "anthropic.aws_region":
		return cfg.Anthropic.AWSRegion, nil
	case "anthropic.aws_profile":
		return cfg.Anthropic.AWSProfile, nil
	case "run.cost_ceiling":
		return strconv.FormatFloat(cfg.Run.CostCeiling, 'g', -1, 64), nil
	case "run.max_steps":
		return strconv.Itoa(cfg.Run.MaxSteps), nil
	case "run.stuck_window":
		return strconv.Itoa(cfg.Run.StuckWindow), nil
	case "run.stuck_threshold":
		return strconv.Itoa(cfg.Run.StuckThreshold), nil
	case "run.history_window":
		return strconv.Itoa(cfg.Run.HistoryWindow), nil
	case "run.agent_max_iterations":
		return strconv.Itoa(cfg.Run.AgentMaxIterations), nil
	case "budgets.probe":
		return cfg.Budgets.Probe.String(), nil
	case "budgets.locator":
		return cfg.Budgets.Locator.String(), nil
	case "budgets.editor":
		return cfg.Budgets.Editor.String(), nil
	case "budgets.test_executor":
		return cfg.Budgets.TestExecutor.String(), nil
	case "budgets.vcs":
		return cfg.Budgets.VCS.String(), nil
	case "budgets.advisor":
		return cfg.Budgets.Advisor.String(), nil
	case "weights.probe":
		return strconv.FormatFloat(cfg.Weights.Probe, 'g', -1, 64), nil
	case "weights.locator":
		return strconv.FormatFloat(cfg.Weights.Locator, 'g', -1, 64), nil
	case "weights.editor":
		return strconv.FormatFloat(cfg.Weights.Editor, 'g', -1, 64), nil
	case "weights.test_executor":
		return strconv.FormatFloat(cfg.Weights.TestExecutor, 'g', -1, 64), nil
	case "weights.vcs":
		return strconv.FormatFloat(cfg.Weights.VCS, 'g', -1, 64), nil
	case "weights.advisor":
		return strconv.FormatFloat(cfg.Weights.Advisor, 'g', -1, 64), nil
	case "tui.refresh_rate":
		return cfg.TUI.RefreshRate.String(), nil
	default:
		return "", fmt.Errorf("unknown config key: %s", key)
	}
}

func setConfigValue(cfg *config.Config, key, value string) error {
	switch key {
	case "anthropic.api_key":
		cfg.Anthropic.APIKey = value
	case "anthropic.model":
		cfg.Anthropic.Model = value
	case "anthropic.use_bedrock":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid bool %q", value)
		}
		cfg.Anthropic.UseBedrock = b
	case "anthropic.aws_region":
		cfg.Anthropic.AWSRegion = value
	case "anthropic.aws_profile":
		cfg.Anthropic.AWSProfile = value
	case "run.cost_ceiling":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid number %q", value)
		}
		cfg.Run.CostCeiling = f
	case "run.max_steps":
		return setIntValue(&cfg.Run.MaxSteps, value)
	case "run.stuck_window":
		return setIntValue(&cfg.Run.StuckWindow, value)
	case "run.stuck_threshold":
		return setIntValue(&cfg.Run.StuckThreshold, value)
	case "run.history_window":
		return setIntValue(&cfg.Run.HistoryWindow, value)
	case "run.agent_max_iterations":
		return setIntValue(&cfg.Run.AgentMaxIterations, value)
	case "budgets.probe":
		return setDurationValue(&cfg.Budgets.Probe, value)
	case "budgets.locator":
		return setDurationValue(&cfg.Budgets.Locator, value)
	case "budgets.editor":
		return setDurationValue(&cfg.Budgets.Editor, value)
	case "budgets.test_executor":
		return setDurationValue(&cfg.Budgets.TestExecutor, value)
	case "budgets.vcs":
		return setDurationValue(&cfg.Budgets.VCS, value)
	case "budgets.advisor":
		return setDurationValue(&cfg.Budgets.Advisor, value)
	case "weights.probe":
		return setFloatValue(&cfg.Weights.Probe, value)
	case "weights.locator":
		return setFloatValue(&cfg.Weights.Locator, value)
	case "weights.editor":
		return setFloatValue(&cfg.Weights.Editor, value)
	case "weights.test_executor":
		return setFloatValue(&cfg.Weights.TestExecutor, value)
	case "weights.vcs":
		return setFloatValue(&cfg.Weights.VCS, value)
	case "weights.advisor":
		return setFloatValue(&cfg.Weights.Advisor, value)
	case "tui.refresh_rate":
		return setDurationValue(&cfg.TUI.RefreshRate, value)
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return nil
}

func setIntValue(dst *int, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid integer %q", value)
	}
	*dst = n
	return nil
}

func setFloatValue(dst *float64, value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid number %q", value)
	}
	*dst = f
	return nil
}

func setDurationValue(dst *time.Duration, value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid duration %q (use forms like 5m, 90s)", value)
	}
	*dst = d
	return nil
}
