package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"agentcore/internal/errs"
	"agentcore/internal/format"
	"agentcore/internal/policy"
	"agentcore/internal/tools"

	"github.com/google/uuid"
)

// ShellHandler runs a local command under the active execution
// policy: policy check, optional approval, timeout coercion, then
// execution, rather than an allowlist check alone. Escalated and
// background dispatch are handled as distinct paths off the same
// policy/approval gate.
type ShellHandler struct {
	DefaultTimeout time.Duration
}

func NewShellHandler() *ShellHandler {
	return &ShellHandler{DefaultTimeout: 30 * time.Second}
}

func (h *ShellHandler) Kind() tools.Kind { return tools.KindShell }

func (h *ShellHandler) MatchesKind(p tools.Payload) bool {
	switch p.(type) {
	case tools.FunctionPayload, tools.UnifiedExecPayload, tools.LocalShellPayload:
		return true
	default:
		return false
	}
}

type shellInput struct {
	Command                  string  `json:"command"`
	Cwd                      string  `json:"cwd"`
	TimeoutMs                float64 `json:"timeout_ms"`
	WithEscalatedPermissions bool    `json:"with_escalated_permissions"`
	IsBackground             bool    `json:"is_background"`
}

var interactiveCommands = map[string]struct{}{
	"vim": {}, "vi": {}, "nano": {}, "less": {}, "more": {}, "man": {}, "top": {}, "htop": {}, "ssh": {}, "sftp": {},
}

func (h *ShellHandler) Handle(ctx context.Context, inv tools.Invocation) (tools.Output, error) {
	callID := inv.Call.CallID

	var command string
	var cwd string
	var requestedTimeout float64
	var escalated bool
	var background bool

	switch p := inv.Call.Payload.(type) {
	case tools.LocalShellPayload:
		command = strings.Join(p.Action.Command, " ")
		if p.Action.Timeout != nil {
			requestedTimeout = *p.Action.Timeout
		}
	default:
		var in shellInput
		if err := decode(inv.Call.Payload, &in); err != nil {
			return nil, err
		}
		command = in.Command
		cwd = in.Cwd
		if in.TimeoutMs > 0 {
			requestedTimeout = in.TimeoutMs / 1000.0
		}
		escalated = in.WithEscalatedPermissions
		background = in.IsBackground
	}

	command = strings.TrimSpace(command)
	if command == "" {
		return fail(callID, "command is required")
	}

	parts, err := splitCommand(command)
	if err != nil || len(parts) == 0 {
		return fail(callID, "could not parse command")
	}
	basename := strings.ToLower(parts[0])
	if _, blocked := interactiveCommands[basename]; blocked {
		return fail(callID, fmt.Sprintf("interactive commands are not allowed: %s", parts[0]))
	}

	if err := inv.Policy.CanExecuteCommand(command, basename); err != nil {
		if te, ok := errs.As(err); ok && !te.Kind.Fatal() {
			return fail(callID, fmt.Sprintf("command blocked by policy: %s", te.Message))
		}
		return nil, err
	}

	if escalated {
		if inv.Policy.Approval == policy.ApprovalNever {
			return fail(callID, "escalated permissions requested but approval is disabled by policy")
		}
		approved, approveErr := requestApprovalForced(inv, fmt.Sprintf("run command with escalated permissions: %s", command))
		if approveErr != nil {
			return nil, errs.Wrap(errs.System, "approval flow failed", approveErr)
		}
		if !approved {
			return fail(callID, "escalated command execution denied by policy")
		}
	} else {
		approved, approveErr := requestApproval(inv, fmt.Sprintf("run command: %s", command), policy.CapExecShell)
		if approveErr != nil {
			return nil, errs.Wrap(errs.System, "approval flow failed", approveErr)
		}
		if !approved {
			return fail(callID, "command execution denied by policy")
		}
	}

	runDir := inv.Cwd
	if cwd != "" {
		runDir = resolvePath(inv, cwd)
	}

	if background {
		return h.runBackground(runDir, parts, inv.Env, callID)
	}

	timeout := h.DefaultTimeout
	if requestedTimeout > 0 {
		timeout = time.Duration(requestedTimeout * float64(time.Second))
	}
	timeout = tools.EffectiveTimeout(inv, timeout)

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, parts[0], parts[1:]...)
	cmd.Dir = runDir
	if len(inv.Env) > 0 {
		for k, v := range inv.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 2 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start).Seconds()
	timedOut := errors.Is(runCtx.Err(), context.DeadlineExceeded)

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else if !timedOut {
			return nil, errs.Wrap(errs.System, "failed to execute command", runErr)
		}
	}

	combined := stdout.String()
	if stderr.Len() > 0 {
		if combined != "" {
			combined += "\n"
		}
		combined += stderr.String()
	}

	formatted := format.Format(combined)
	envelope := format.Envelop(formatted, exitCode, duration, timedOut)
	raw, err := json.Marshal(envelope)
	if err != nil {
		return nil, errs.Wrap(errs.System, "failed to encode shell output", err)
	}
	return tools.FunctionResult{
		ID:      callID,
		Content: string(raw),
		Success: exitCode == 0 && !timedOut,
		Metadata: map[string]any{
			"exit_code": exitCode,
			"timed_out": timedOut,
		},
	}, nil
}

type backgroundDescriptor struct {
	OK        bool   `json:"ok"`
	JobID     string `json:"job_id"`
	PID       int    `json:"pid"`
	StdoutLog string `json:"stdout_log"`
	StderrLog string `json:"stderr_log"`
	Hint      string `json:"hint"`
}

// runBackground dispatches command detached from the calling process,
// streaming stdout/stderr to sidecar log files under run_logs/, and
// returns a descriptor immediately without waiting on completion.
func (h *ShellHandler) runBackground(runDir string, parts []string, env map[string]string, callID string) (tools.Output, error) {
	logDir := filepath.Join(runDir, "run_logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, errs.Wrap(errs.System, "failed to create run_logs directory", err)
	}

	jobID := fmt.Sprintf("job-%s-%s", time.Now().Format("20060102-150405"), uuid.NewString()[:8])
	stdoutPath := filepath.Join(logDir, jobID+".out.log")
	stderrPath := filepath.Join(logDir, jobID+".err.log")

	stdoutFile, err := os.Create(stdoutPath)
	if err != nil {
		return nil, errs.Wrap(errs.System, "failed to create stdout log", err)
	}
	stderrFile, err := os.Create(stderrPath)
	if err != nil {
		stdoutFile.Close()
		return nil, errs.Wrap(errs.System, "failed to create stderr log", err)
	}

	cmd := exec.Command(parts[0], parts[1:]...)
	cmd.Dir = runDir
	cmd.Stdout = stdoutFile
	cmd.Stderr = stderrFile
	if len(env) > 0 {
		for k, v := range env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		stdoutFile.Close()
		stderrFile.Close()
		return nil, errs.Wrap(errs.System, "failed to start background command", err)
	}

	go func() {
		_ = cmd.Wait()
		stdoutFile.Close()
		stderrFile.Close()
	}()

	descriptor := backgroundDescriptor{
		OK:        true,
		JobID:     jobID,
		PID:       cmd.Process.Pid,
		StdoutLog: stdoutPath,
		StderrLog: stderrPath,
		Hint:      fmt.Sprintf("tail -f %s", stdoutPath),
	}
	return ok(callID, descriptor)
}

func splitCommand(input string) ([]string, error) {
	var args []string
	var buf bytes.Buffer
	inSingle, inDouble, escape := false, false, false

	for _, r := range input {
		if escape {
			buf.WriteRune(r)
			escape = false
			continue
		}
		if r == '\\' && !inSingle {
			escape = true
			continue
		}
		if r == '\'' && !inDouble {
			inSingle = !inSingle
			continue
		}
		if r == '"' && !inSingle {
			inDouble = !inDouble
			continue
		}
		if (r == ' ' || r == '\t' || r == '\n') && !inSingle && !inDouble {
			if buf.Len() > 0 {
				args = append(args, buf.String())
				buf.Reset()
			}
			continue
		}
		buf.WriteRune(r)
	}
	if escape || inSingle || inDouble {
		return nil, errors.New("unterminated quote or escape in command")
	}
	if buf.Len() > 0 {
		args = append(args, buf.String())
	}
	return args, nil
}
