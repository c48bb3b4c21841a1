package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	DefaultModel       = "openrouter/pony-alpha"
	DefaultMaxSteps    = 8
	DefaultTimeout     = 60 * time.Second
	DefaultBaseURL     = "https://openrouter.ai/api/v1"
	DefaultMaxContext  = 80 * 1024
	DefaultGrepLines   = 200
	DefaultGrepBytes   = 20 * 1024
	DefaultShellBytes  = 20 * 1024
	DefaultWebBytes    = 30 * 1024
	DefaultMaxFileSize = 32 * 1024

	// DefaultKeepLastTurns and DefaultTargetTokens back the
	// [compaction] config section defaults.
	DefaultKeepLastTurns     = 4
	DefaultTargetTokens      = 60 * 1024
	DefaultPinsBudgetTokens  = 2 * 1024
)

// ToolLimits controls max output sizes for tools and context.
type ToolLimits struct {
	GrepMaxResults  int `mapstructure:"grep_max_results"`
	GrepMaxBytes    int `mapstructure:"grep_max_bytes"`
	ShellMaxBytes   int `mapstructure:"shell_max_bytes"`
	WebMaxBytes     int `mapstructure:"web_max_bytes"`
	ContextMaxBytes int `mapstructure:"context_max_bytes"`
	MaxFileBytes    int `mapstructure:"max_file_bytes"`
	// MaxToolTokens is [tools.limits].max_tool_tokens. Load fills in a
	// default for it; no handler, formatter or session code reads it,
	// so it does not limit tool-result size.
	MaxToolTokens int `mapstructure:"max_tool_tokens"`
}

// CompactionSettings mirrors the [compaction] config section.
type CompactionSettings struct {
	Auto          bool `mapstructure:"auto"`
	KeepLastTurns int  `mapstructure:"keep_last_turns"`
	TargetTokens  int  `mapstructure:"target_tokens"`
}

// ExecutionSettings mirrors the [execution] config section, decoded
// into the internal/policy.Policy the host (cmd/agentcore) builds and
// hands to the orchestrator.
type ExecutionSettings struct {
	Sandbox         string   `mapstructure:"sandbox"`
	Approval        string   `mapstructure:"approval"`
	AllowedPaths    []string `mapstructure:"allowed_paths"`
	BlockedCommands []string `mapstructure:"blocked_commands"`
	TimeoutSeconds  float64  `mapstructure:"timeout_seconds"`
}

// MCPDefinition mirrors one entry of the [[mcp.definitions]] config
// list: a named stdio MCP server the host's client factory knows how
// to launch.
type MCPDefinition struct {
	Name       string            `mapstructure:"name"`
	Command    string            `mapstructure:"command"`
	Args       []string          `mapstructure:"args"`
	Env        map[string]string `mapstructure:"env"`
	TTLSeconds float64           `mapstructure:"ttl_seconds"`
}

// ModelSettings mirrors the [model] config section.
type ModelSettings struct {
	Name          string `mapstructure:"name"`
	ContextTokens int    `mapstructure:"context_tokens"`
}

// Config holds runtime configuration values.
type Config struct {
	Model             string
	MaxSteps          int
	Repo              string
	Timeout           time.Duration
	UnsafeShell       bool
	NoWeb             bool
	Quiet             bool
	JSON              bool
	Verbose           bool
	LogFile           string
	HistoryLines      int
	NoHistory         bool
	OutputFormat      string
	PersistRuns       bool
	OpenRouterBaseURL string
	HTTPReferer       string
	Title             string
	ToolLimits        ToolLimits
	Compaction        CompactionSettings
	Execution         ExecutionSettings
	MCPDefinitions    []MCPDefinition
	ModelSettings     ModelSettings
	PinsBudgetTokens  int
}

type rawConfig struct {
	Model              string     `mapstructure:"model"`
	MaxSteps           int        `mapstructure:"max_steps"`
	Repo               string     `mapstructure:"repo"`
	Timeout            string     `mapstructure:"timeout"`
	UnsafeShell        bool       `mapstructure:"unsafe_shell"`
	UnsafeShellDefault bool       `mapstructure:"unsafe_shell_default"`
	NoWeb              bool       `mapstructure:"no_web"`
	Quiet              bool       `mapstructure:"quiet"`
	JSON               bool       `mapstructure:"json"`
	Verbose            bool       `mapstructure:"verbose"`
	LogFile            string     `mapstructure:"log_file"`
	HistoryLines       int        `mapstructure:"history_lines"`
	NoHistory          bool       `mapstructure:"no_history"`
	OutputFormat       string     `mapstructure:"output_format"`
	PersistRuns        bool       `mapstructure:"persist_runs"`
	OpenRouterBaseURL  string     `mapstructure:"openrouter_base_url"`
	HTTPReferer        string     `mapstructure:"http_referer"`
	Title              string             `mapstructure:"title"`
	ToolLimits         ToolLimits         `mapstructure:"tool_limits"`
	Compaction         CompactionSettings `mapstructure:"compaction"`
	Execution          ExecutionSettings  `mapstructure:"execution"`
	MCPDefinitions     []MCPDefinition    `mapstructure:"mcp_definitions"`
	ModelSettings      ModelSettings      `mapstructure:"model"`
	PinsBudgetTokens   int                `mapstructure:"pins_budget_tokens"`
}

// Load resolves configuration from defaults, config files, env, and flags.
func Load(cmd *cobra.Command) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AGENTCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("model", DefaultModel)
	v.SetDefault("max_steps", DefaultMaxSteps)
	v.SetDefault("timeout", DefaultTimeout.String())
	v.SetDefault("repo", ".")
	v.SetDefault("unsafe_shell", false)
	v.SetDefault("unsafe_shell_default", false)
	v.SetDefault("no_web", false)
	v.SetDefault("quiet", false)
	v.SetDefault("json", false)
	v.SetDefault("verbose", false)
	v.SetDefault("log_file", "")
	v.SetDefault("history_lines", 50)
	v.SetDefault("no_history", false)
	v.SetDefault("output_format", "text")
	v.SetDefault("persist_runs", false)
	v.SetDefault("openrouter_base_url", DefaultBaseURL)
	v.SetDefault("tool_limits.grep_max_results", DefaultGrepLines)
	v.SetDefault("tool_limits.grep_max_bytes", DefaultGrepBytes)
	v.SetDefault("tool_limits.shell_max_bytes", DefaultShellBytes)
	v.SetDefault("tool_limits.web_max_bytes", DefaultWebBytes)
	v.SetDefault("tool_limits.context_max_bytes", DefaultMaxContext)
	v.SetDefault("tool_limits.max_file_bytes", DefaultMaxFileSize)
	v.SetDefault("tool_limits.max_tool_tokens", DefaultMaxContext/4)
	v.SetDefault("compaction.auto", true)
	v.SetDefault("compaction.keep_last_turns", DefaultKeepLastTurns)
	v.SetDefault("compaction.target_tokens", DefaultTargetTokens)
	v.SetDefault("execution.sandbox", "restricted")
	v.SetDefault("execution.approval", "on_request")
	v.SetDefault("model.name", DefaultModel)
	v.SetDefault("model.context_tokens", DefaultTargetTokens*2)
	v.SetDefault("pins_budget_tokens", DefaultPinsBudgetTokens)

	if cmd != nil {
		_ = v.BindPFlag("model", cmd.Flags().Lookup("model"))
		_ = v.BindPFlag("max_steps", cmd.Flags().Lookup("max-steps"))
		_ = v.BindPFlag("repo", cmd.Flags().Lookup("repo"))
		_ = v.BindPFlag("timeout", cmd.Flags().Lookup("timeout"))
		_ = v.BindPFlag("unsafe_shell", cmd.Flags().Lookup("unsafe-shell"))
		_ = v.BindPFlag("no_web", cmd.Flags().Lookup("no-web"))
		_ = v.BindPFlag("quiet", cmd.Flags().Lookup("quiet"))
		_ = v.BindPFlag("json", cmd.Flags().Lookup("json"))
		_ = v.BindPFlag("verbose", cmd.Flags().Lookup("verbose"))
		_ = v.BindPFlag("log_file", cmd.Flags().Lookup("log-file"))
		_ = v.BindPFlag("history_lines", cmd.Flags().Lookup("history-lines"))
		_ = v.BindPFlag("no_history", cmd.Flags().Lookup("no-history"))
		_ = v.BindPFlag("persist_runs", cmd.Flags().Lookup("persist-runs"))
	}

	// AGENTCORE_TIMEOUT_SECONDS is a convenience override expressed in
	// bare seconds rather than a duration string; AutomaticEnv already
	// covers AGENTCORE_MODEL and AGENTCORE_OPENROUTER_BASE_URL directly.
	if seconds := os.Getenv("AGENTCORE_TIMEOUT_SECONDS"); seconds != "" {
		v.Set("timeout", seconds+"s")
	}
	if openAIModel := os.Getenv("OPENAI_MODEL"); openAIModel != "" && os.Getenv("AGENTCORE_MODEL") == "" {
		v.Set("model", openAIModel)
	}
	if openAIBaseURL := os.Getenv("OPENAI_BASE_URL"); openAIBaseURL != "" && os.Getenv("AGENTCORE_OPENROUTER_BASE_URL") == "" {
		v.Set("openrouter_base_url", openAIBaseURL)
	}

	if err := loadConfigFile(v); err != nil {
		return Config{}, err
	}

	// The "model" key is either a scalar model name (flag, env, override)
	// or the [model] section map (defaults, config file); it is decoded
	// separately so the scalar and section fields never collide.
	settings := v.AllSettings()
	modelValue := settings["model"]
	delete(settings, "model")

	var raw rawConfig
	decoder, _ := mapstructure.NewDecoder(&mapstructure.DecoderConfig{TagName: "mapstructure", Result: &raw})
	if err := decoder.Decode(settings); err != nil {
		return Config{}, err
	}
	switch m := modelValue.(type) {
	case string:
		raw.Model = m
	case map[string]any:
		if err := mapstructure.Decode(m, &raw.ModelSettings); err != nil {
			return Config{}, err
		}
		raw.Model = raw.ModelSettings.Name
	}

	timeout := DefaultTimeout
	if raw.Timeout != "" {
		parsed, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return Config{}, fmt.Errorf("invalid timeout duration: %w", err)
		}
		timeout = parsed
	}

	unsafeShell := raw.UnsafeShell
	if cmd != nil && cmd.Flags().Changed("unsafe-shell") {
		unsafeShell = v.GetBool("unsafe_shell")
	} else if v.IsSet("unsafe_shell_default") {
		unsafeShell = raw.UnsafeShellDefault
	}

	jsonOutput := raw.JSON
	if cmd != nil && cmd.Flags().Changed("json") {
		jsonOutput = v.GetBool("json")
	} else if strings.EqualFold(raw.OutputFormat, "json") {
		jsonOutput = true
	}

	cfg := Config{
		Model:             raw.Model,
		MaxSteps:          raw.MaxSteps,
		Repo:              raw.Repo,
		Timeout:           timeout,
		UnsafeShell:       unsafeShell,
		NoWeb:             raw.NoWeb,
		Quiet:             raw.Quiet,
		JSON:              jsonOutput,
		Verbose:           raw.Verbose,
		LogFile:           raw.LogFile,
		HistoryLines:      raw.HistoryLines,
		NoHistory:         raw.NoHistory,
		OutputFormat:      raw.OutputFormat,
		PersistRuns:       raw.PersistRuns,
		OpenRouterBaseURL: raw.OpenRouterBaseURL,
		HTTPReferer:       raw.HTTPReferer,
		Title:             raw.Title,
		ToolLimits:        raw.ToolLimits,
		Compaction:        raw.Compaction,
		Execution:         raw.Execution,
		MCPDefinitions:    raw.MCPDefinitions,
		ModelSettings:     raw.ModelSettings,
		PinsBudgetTokens:  raw.PinsBudgetTokens,
	}

	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.OpenRouterBaseURL == "" {
		cfg.OpenRouterBaseURL = DefaultBaseURL
	}
	if cfg.HistoryLines < 0 {
		cfg.HistoryLines = 0
	}

	if cfg.ToolLimits.ContextMaxBytes <= 0 {
		cfg.ToolLimits.ContextMaxBytes = DefaultMaxContext
	}
	if cfg.ToolLimits.GrepMaxResults <= 0 {
		cfg.ToolLimits.GrepMaxResults = DefaultGrepLines
	}
	if cfg.ToolLimits.GrepMaxBytes <= 0 {
		cfg.ToolLimits.GrepMaxBytes = DefaultGrepBytes
	}
	if cfg.ToolLimits.ShellMaxBytes <= 0 {
		cfg.ToolLimits.ShellMaxBytes = DefaultShellBytes
	}
	if cfg.ToolLimits.WebMaxBytes <= 0 {
		cfg.ToolLimits.WebMaxBytes = DefaultWebBytes
	}
	if cfg.ToolLimits.MaxFileBytes <= 0 {
		cfg.ToolLimits.MaxFileBytes = DefaultMaxFileSize
	}
	if cfg.ToolLimits.MaxToolTokens <= 0 {
		cfg.ToolLimits.MaxToolTokens = DefaultMaxContext / 4
	}
	if cfg.Compaction.KeepLastTurns <= 0 {
		cfg.Compaction.KeepLastTurns = DefaultKeepLastTurns
	}
	if cfg.Compaction.TargetTokens <= 0 {
		cfg.Compaction.TargetTokens = DefaultTargetTokens
	}
	if cfg.Execution.Sandbox == "" {
		cfg.Execution.Sandbox = "restricted"
	}
	if cfg.Execution.Approval == "" {
		cfg.Execution.Approval = "on_request"
	}
	if cfg.ModelSettings.Name == "" {
		cfg.ModelSettings.Name = cfg.Model
	}
	if cfg.ModelSettings.ContextTokens <= 0 {
		cfg.ModelSettings.ContextTokens = DefaultTargetTokens * 2
	}
	if cfg.PinsBudgetTokens <= 0 {
		cfg.PinsBudgetTokens = DefaultPinsBudgetTokens
	}

	return cfg, nil
}

func loadConfigFile(v *viper.Viper) error {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil
	}
	bases := []string{
		filepath.Join(configDir, "agentcore"),
	}
	var candidates []string
	for _, base := range bases {
		candidates = append(candidates,
			filepath.Join(base, "config.toml"),
			filepath.Join(base, "config.yaml"),
			filepath.Join(base, "config.yml"),
			filepath.Join(base, "config.json"),
		)
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return err
			}
			return nil
		}
	}
	return nil
}
