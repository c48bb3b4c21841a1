// Package policy implements the execution-policy gates: sandbox
// level, approval level, allowed write paths, blocked command
// substrings, and a timeout cap, consulted by handlers before any
// side-effecting operation.
//
// Generalizes what used to be ad hoc blocklists on individual
// handlers into one object every handler consults.
package policy

import (
	"path/filepath"
	"strings"
	"time"

	"agentcore/internal/errs"
)

type Sandbox string

const (
	SandboxNone       Sandbox = "none"
	SandboxRestricted Sandbox = "restricted"
	SandboxStrict     Sandbox = "strict"
)

type Approval string

const (
	ApprovalNever     Approval = "never"
	ApprovalOnRequest Approval = "on_request"
	ApprovalOnWrite   Approval = "on_write"
	ApprovalAlways    Approval = "always"
)

// Capability describes what effect a call may have, used to decide
// whether approval/sandbox gates apply.
type Capability string

const (
	CapReadFS    Capability = "read_fs"
	CapWriteFS   Capability = "write_fs"
	CapExecShell Capability = "exec_shell"
	CapNetwork   Capability = "network"
)

// ApprovalFunc is consulted when the policy requires interactive
// confirmation; it must not be called while holding a scheduler or
// tracker lock.
type ApprovalFunc func(summary string) (approved bool, err error)

// Policy is the execution policy in effect for one turn.
type Policy struct {
	Sandbox         Sandbox
	Approval        Approval
	AllowedPaths    []string
	BlockedCommands []string
	StrictSafeList  []string // command basenames allowed under SandboxStrict
	TimeoutSeconds  float64  // 0 means no cap

	RequestApproval ApprovalFunc
}

// Default returns the permissive default policy (sandbox=none,
// approval=never): shell commands run unprompted unless a config
// tightens this.
func Default() Policy {
	return Policy{Sandbox: SandboxNone, Approval: ApprovalNever}
}

// New builds a Policy from the [execution] config section values,
// defaulting an empty/unknown sandbox or approval string to the
// permissive default rather than rejecting the config.
func New(sandbox, approval string, allowedPaths, blockedCommands []string, timeoutSeconds float64, requestApproval ApprovalFunc) Policy {
	p := Policy{
		Sandbox:         Sandbox(sandbox),
		Approval:        Approval(approval),
		AllowedPaths:    allowedPaths,
		BlockedCommands: blockedCommands,
		TimeoutSeconds:  timeoutSeconds,
		RequestApproval: requestApproval,
	}
	switch p.Sandbox {
	case SandboxNone, SandboxRestricted, SandboxStrict:
	default:
		p.Sandbox = SandboxNone
	}
	switch p.Approval {
	case ApprovalNever, ApprovalOnRequest, ApprovalOnWrite, ApprovalAlways:
	default:
		p.Approval = ApprovalNever
	}
	return p
}

// CanExecuteCommand checks the sandbox and blocked-commands gates
// against a full command line. It does not consult approval; callers
// invoke RequiresApproval separately once they know the capability set.
// The blocked-commands denylist is restricted mode's mechanism and
// strict mode's safe-list supersedes it; sandbox=none is unrestricted
// and skips both.
func (p Policy) CanExecuteCommand(commandLine string, basename string) error {
	switch p.Sandbox {
	case SandboxStrict:
		for _, allowed := range p.StrictSafeList {
			if allowed == basename {
				return nil
			}
		}
		return errs.New(errs.Sandbox, "command not in strict safe-list: "+basename)
	case SandboxRestricted:
		for _, blocked := range p.BlockedCommands {
			if blocked != "" && strings.Contains(commandLine, blocked) {
				return errs.New(errs.Sandbox, "command blocked by policy: "+blocked)
			}
		}
		return nil
	case SandboxNone:
		return nil
	default:
		return nil
	}
}

// CanWritePath enforces the allowed_paths gate for filesystem writes.
func (p Policy) CanWritePath(target string) error {
	if len(p.AllowedPaths) == 0 {
		return nil
	}
	abs, err := filepath.Abs(target)
	if err != nil {
		return errs.Wrap(errs.Sandbox, "could not resolve write target", err)
	}
	for _, allowed := range p.AllowedPaths {
		allowedAbs, err := filepath.Abs(allowed)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(allowedAbs, abs)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return nil
		}
	}
	return errs.New(errs.Sandbox, "write target outside allowed paths: "+target)
}

// RequiresApproval reports whether the given capability set triggers
// an approval prompt under the current policy.
func (p Policy) RequiresApproval(caps ...Capability) bool {
	switch p.Approval {
	case ApprovalAlways:
		return true
	case ApprovalNever:
		return false
	case ApprovalOnWrite:
		for _, c := range caps {
			if c == CapWriteFS {
				return true
			}
		}
		return false
	case ApprovalOnRequest:
		return true
	default:
		return false
	}
}

// EffectiveTimeout coerces a handler-supplied timeout onto the
// policy's cap, returning the handler's value unchanged when no cap
// is configured or the handler's value is already smaller.
func (p Policy) EffectiveTimeout(handlerTimeout time.Duration) time.Duration {
	if p.TimeoutSeconds <= 0 {
		return handlerTimeout
	}
	cap := time.Duration(p.TimeoutSeconds * float64(time.Second))
	if handlerTimeout <= 0 || handlerTimeout > cap {
		return cap
	}
	return handlerTimeout
}
