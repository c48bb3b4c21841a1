package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"agentcore/internal/audit"
	"agentcore/internal/config"
	"agentcore/internal/interrupt"
	"agentcore/internal/llm"
	"agentcore/internal/mcp"
	"agentcore/internal/orchestrator"
	"agentcore/internal/policy"
	"agentcore/internal/render"
	"agentcore/internal/repo"
	"agentcore/internal/session"
	"agentcore/internal/toolbuild"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "agentcore [question]",
		Short:         "agentcore - terminal-native coding agent core",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MinimumNArgs(1),
		RunE:          runAgent,
	}

	cmd.Flags().String("model", config.DefaultModel, "Model name")
	cmd.Flags().Int("max-steps", config.DefaultMaxSteps, "Maximum tool steps")
	cmd.Flags().String("repo", ".", "Repository path")
	cmd.Flags().String("timeout", config.DefaultTimeout.String(), "Timeout (e.g. 60s)")
	cmd.Flags().Bool("unsafe-shell", false, "Allow unsafe shell commands")
	cmd.Flags().Bool("no-web", false, "Disable web search")
	cmd.Flags().Bool("quiet", false, "Only print final answer")
	cmd.Flags().Bool("json", false, "Output JSON only")
	cmd.Flags().Bool("verbose", false, "Enable verbose logging")
	cmd.Flags().String("log-file", "", "Write plain-text output to a file")
	cmd.Flags().Int("history-lines", 50, "Number of shell history lines to include")
	cmd.Flags().Bool("no-history", false, "Disable shell history context")
	cmd.Flags().Bool("persist-runs", false, "Persist each run's result and audit trail to disk")

	return cmd
}

func runAgent(cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")
	cfg, err := config.Load(cmd)
	if err != nil {
		return err
	}
	if cfg.Quiet {
		cfg.Verbose = false
	}

	apiKey := os.Getenv("OPENROUTER_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	mockMode := os.Getenv("AGENTCORE_MOCK_LLM") == "1"
	if apiKey == "" && !mockMode {
		fmt.Fprintln(os.Stderr, "OPENROUTER_API_KEY is required")
		os.Exit(2)
	}

	logger := buildLogger(cfg.Verbose)
	defer func() { _ = logger.Sync() }()

	repoRoot, err := repo.FindRoot(cfg.Repo)
	if err != nil {
		logger.Warn("failed to find repo root", zap.Error(err))
		repoRoot = cfg.Repo
	}
	repoRoot, _ = filepath.Abs(repoRoot)

	repoCtx, err := repo.BuildContext(repoRoot, repo.Limits{ContextMaxBytes: cfg.ToolLimits.ContextMaxBytes, MaxFileBytes: cfg.ToolLimits.MaxFileBytes})
	if err != nil {
		logger.Warn("failed to build repo context", zap.Error(err))
	}

	exaKey := os.Getenv("EXA_API_KEY")
	if cfg.NoWeb {
		exaKey = ""
	}
	registry := toolbuild.Build(toolbuild.RegistryOptions{ExaAPIKey: exaKey, EnableMCP: len(cfg.MCPDefinitions) > 0})

	var client llm.Client
	if mockMode {
		client = llm.NewMockClient()
	} else {
		client = llm.NewOpenRouterClient(apiKey, cfg.OpenRouterBaseURL, cfg.HTTPReferer, cfg.Title)
	}

	sess := session.New(session.CompactionConfig{
		Auto:          cfg.Compaction.Auto,
		KeepLastTurns: cfg.Compaction.KeepLastTurns,
		TargetTokens:  cfg.Compaction.TargetTokens,
	}, cfg.PinsBudgetTokens)
	if len(cfg.MCPDefinitions) > 0 {
		sess.Pool = session.NewMCPPool(buildMCPFactory(cfg.MCPDefinitions), 0)
	}

	pol := policy.New(cfg.Execution.Sandbox, cfg.Execution.Approval, cfg.Execution.AllowedPaths, cfg.Execution.BlockedCommands, cfg.Execution.TimeoutSeconds, stdinApprovalFunc(cfg.Quiet))

	interrupter := interrupt.New()
	interrupter.Arm()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	go func() {
		<-ctx.Done()
		interrupter.Fire()
	}()
	ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	var writer io.Writer = os.Stdout
	var logFile *os.File
	if cfg.LogFile != "" && !cfg.JSON {
		logPath := cfg.LogFile
		if !filepath.IsAbs(logPath) {
			logPath = filepath.Join(repoRoot, logPath)
		}
		file, err := os.Create(logPath)
		if err != nil {
			return err
		}
		logFile = file
		writer = io.MultiWriter(os.Stdout, logFile)
	}

	var renderer render.Renderer
	if !cfg.JSON {
		renderer = render.NewStdoutRenderer(writer, cfg.Verbose, cfg.Quiet, true, true, true)
	}

	orc := orchestrator.New(client, registry, sess, renderer, interrupter, logger, cfg, pol)
	result, runErr := orc.Run(ctx, question, repoRoot, repoCtx)

	if renderer != nil {
		_ = renderer.Close()
	}
	if logFile != nil {
		_ = logFile.Close()
	}

	if err := audit.AppendAgentHistory(question); err != nil {
		logger.Warn("failed to append agent history", zap.Error(err))
	}

	if cfg.PersistRuns {
		persistRun(logger, result)
	}

	if cfg.JSON {
		payload, _ := json.MarshalIndent(result, "", "  ")
		fmt.Fprintln(os.Stdout, string(payload))
	}

	if runErr != nil {
		return runErr
	}
	return nil
}

func buildLogger(verbose bool) *zap.Logger {
	if verbose {
		logger, _ := zap.NewDevelopment()
		return logger
	}
	logger, _ := zap.NewProduction()
	return logger
}

// stdinApprovalFunc builds the interactive approval prompt the
// execution policy consults when the configured approval level
// requires it; quiet mode always denies rather than blocking on a
// prompt nobody will see.
func stdinApprovalFunc(quiet bool) policy.ApprovalFunc {
	return func(summary string) (bool, error) {
		if quiet {
			return false, nil
		}
		fmt.Fprintf(os.Stderr, "Approve? %s [y/N]: ", summary)
		var response string
		_, _ = fmt.Fscanln(os.Stdin, &response)
		response = strings.ToLower(strings.TrimSpace(response))
		return response == "y" || response == "yes", nil
	}
}

// buildMCPFactory adapts the config file's [[mcp.definitions]] entries
// into the session pool's mcp.ClientFactory, looking servers up by
// name. No MCP transport library exists anywhere in the retrieval
// pack (see DESIGN.md); the host is expected to supply a real
// transport-backed factory for any server it actually dispatches to,
// so a server name with no matching definition is a configuration
// error rather than a silently-ignored call.
func buildMCPFactory(defs []config.MCPDefinition) mcp.ClientFactory {
	byName := make(map[string]config.MCPDefinition, len(defs))
	for _, d := range defs {
		byName[d.Name] = d
	}
	return func(ctx context.Context, serverName string) (mcp.Client, error) {
		if _, ok := byName[serverName]; !ok {
			return nil, fmt.Errorf("no mcp.definitions entry named %q", serverName)
		}
		return nil, fmt.Errorf("mcp server %q has no configured transport", serverName)
	}
}

func persistRun(logger *zap.Logger, result orchestrator.RunResult) {
	home, err := os.UserHomeDir()
	if err != nil {
		logger.Warn("failed to get home dir", zap.Error(err))
		return
	}
	runDir := filepath.Join(home, ".local", "share", "agentcore", "runs")
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		logger.Warn("failed to create run directory", zap.Error(err))
		return
	}
	file := filepath.Join(runDir, result.RunID+".json")
	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		logger.Warn("failed to marshal run log", zap.Error(err))
		return
	}
	if err := os.WriteFile(file, payload, 0o600); err != nil {
		logger.Warn("failed to write run log", zap.Error(err))
	}

	w, err := audit.New(filepath.Join(home, ".local", "share", "agentcore"))
	if err != nil {
		logger.Warn("failed to open audit writer", zap.Error(err))
		return
	}
	for _, tc := range result.ToolCalls {
		_ = w.AppendAudit(audit.Record{
			Timestamp: time.Now(),
			ToolName:  tc.ToolName,
			CallID:    tc.CallID,
			Input:     tc.Input,
			Summary:   tc.Output,
			Success:   tc.Status == "success",
		})
	}
	if len(result.ChangedPaths) > 0 {
		_ = w.AppendChange(audit.ChangeRecord{Timestamp: time.Now(), Paths: result.ChangedPaths, Diff: result.Diff})
	}
	if len(result.Telemetry) > 0 {
		if err := w.AppendTelemetry(result.Telemetry); err != nil {
			logger.Warn("failed to append telemetry", zap.Error(err))
		}
	}
	_ = w.AppendTranscript(fmt.Sprintf("Q: %s\nA: %s", result.Question, result.FinalAnswer))
}
