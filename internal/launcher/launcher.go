// Package launcher runs the assistant binary for a provider: preflight
// cleanup and resource sync, environment construction, then a foreground
// spawn that shares the parent's terminal.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/starford/raido/internal/cleanup"
	"github.com/starford/raido/internal/mcp"
	"github.com/starford/raido/internal/paths"
	"github.com/starford/raido/internal/provider"
	"github.com/starford/raido/internal/symlink"
)

// Environment variables composed for the child process.
const (
	EnvConfigDir   = "CLAUDE_CONFIG_DIR"
	EnvNodeOptions = "NODE_OPTIONS"

	heapFlag    = "--max-old-space-size"
	heapSetting = "--max-old-space-size=4096"
)

// fallbackExitCode is reported when the child terminated without an
// exit status (killed by a signal).
const fallbackExitCode = 1

// Gate persists memory-reset timestamps per provider key
// (see state.DB).
type Gate interface {
	ShouldReset(provider string, interval time.Duration, now time.Time) (bool, error)
	SetLastReset(provider string, t time.Time) error
}

// Launcher orchestrates one launch of the assistant binary.
type Launcher struct {
	command      string
	canonicalDir string
	resolver     *paths.Resolver
	cleaner      *cleanup.Cleaner
	gate         Gate
	logger       *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// New creates a Launcher. gate may be nil, which disables the scheduled
// memory reset even for providers that enable it.
func New(command, canonicalDir string, resolver *paths.Resolver, cleaner *cleanup.Cleaner, gate Gate, logger *slog.Logger) *Launcher {
	return &Launcher{
		command:      command,
		canonicalDir: canonicalDir,
		resolver:     resolver,
		cleaner:      cleaner,
		gate:         gate,
		logger:       logger,
		now:          time.Now,
	}
}

// Launch runs the preflight pipeline for p, spawns the assistant binary
// with args, and returns the child's exit code. Preflight problems are
// warnings; only an invalid provider record or a spawn failure abort the
// launch.
func (l *Launcher) Launch(ctx context.Context, p provider.Provider, args []string) (int, error) {
	if err := p.Validate(); err != nil {
		return fallbackExitCode, fmt.Errorf("launcher: refusing to launch: %w", err)
	}

	configDir := filepath.Clean(l.resolver.Expand(p.ConfigDir))
	canonical := filepath.Clean(l.resolver.Expand(l.canonicalDir))

	l.preflightMemoryReset(p, configDir)
	l.preflightCleanup(p, configDir)
	l.preflightSync(p, canonical, configDir)

	env := BuildEnv(os.Environ(), p, configDir)
	return l.spawn(ctx, args, env)
}

// preflightMemoryReset wipes high-churn state when the provider enables
// it and the gate interval has elapsed. The gate timestamp is always
// advanced after a due reset, even when nothing was freed.
func (l *Launcher) preflightMemoryReset(p provider.Provider, configDir string) {
	if !p.MemoryReset || l.gate == nil {
		return
	}
	now := l.now()
	due, err := l.gate.ShouldReset(p.Name, l.cleaner.Policy().ResetInterval, now)
	if err != nil {
		l.logger.Warn("launcher: reset gate unavailable", slog.String("error", err.Error()))
		return
	}
	if !due {
		return
	}
	freed := l.cleaner.ResetMemory(configDir)
	if err := l.gate.SetLastReset(p.Name, now); err != nil {
		l.logger.Warn("launcher: record reset failed", slog.String("error", err.Error()))
	}
	l.logger.Info("launcher: memory reset",
		slog.String("provider", p.Name),
		slog.Int64("bytes_freed", freed))
}

func (l *Launcher) preflightCleanup(p provider.Provider, configDir string) {
	l.cleaner.CleanCaches(configDir)
	if !p.MemoryReset {
		return
	}
	cleaned, saved := l.cleaner.TruncateSessions(configDir)
	if cleaned > 0 {
		l.logger.Info("launcher: truncated oversized sessions",
			slog.Int("files", cleaned),
			slog.Int64("bytes_saved", saved))
	}
}

// preflightSync links shared resources and merges MCP servers into the
// provider's config directory. A provider using the canonical directory
// needs no sync and must not sync into itself.
func (l *Launcher) preflightSync(p provider.Provider, canonical, configDir string) {
	if configDir == canonical {
		return
	}

	for _, res := range symlink.SyncAll(l.resolver, canonical, configDir, false) {
		if res.Err != nil {
			l.logger.Warn("launcher: sync resource failed",
				slog.String("resource", res.Resource),
				slog.String("error", res.Err.Error()))
			continue
		}
		if res.Status == symlink.StatusCreated {
			l.logger.Debug("launcher: linked resource", slog.String("resource", res.Resource))
		}
	}

	sourceFile := filepath.Join(canonical, mcp.DocumentName)
	if merged, err := mcp.MergeServers(sourceFile, configDir, false); err != nil {
		l.logger.Warn("launcher: mcp merge failed", slog.String("error", err.Error()))
	} else if merged {
		l.logger.Debug("launcher: merged mcp servers", slog.String("provider", p.Name))
	}

	// Stale OAuth data makes the assistant prefer OAuth over the
	// supplied API token; the two are mutually exclusive.
	if p.Kind == provider.KindAPIKey {
		if stripped, err := mcp.StripOAuth(configDir); err != nil {
			l.logger.Warn("launcher: oauth strip failed", slog.String("error", err.Error()))
		} else if stripped {
			l.logger.Info("launcher: removed stale oauth credentials", slog.String("provider", p.Name))
		}
	}
}

// BuildEnv overlays the base environment with the config-directory
// pointer, the runtime heap flag (only when the user has not already set
// one), and, for API-key providers, every non-empty credential from the
// provider's env mapping.
func BuildEnv(base []string, p provider.Provider, configDir string) []string {
	env := setVar(base, EnvConfigDir, configDir)

	node := getVar(env, EnvNodeOptions)
	if !strings.Contains(node, heapFlag) {
		v := heapSetting
		if node != "" {
			v = node + " " + heapSetting
		}
		env = setVar(env, EnvNodeOptions, v)
	}

	if p.Kind == provider.KindAPIKey {
		keys := make([]string, 0, len(p.Env))
		for k := range p.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if v := p.Env[k]; v != "" {
				env = setVar(env, k, v)
			}
		}
	}
	return env
}

func getVar(env []string, key string) string {
	prefix := key + "="
	for _, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			return kv[len(prefix):]
		}
	}
	return ""
}

func setVar(env []string, key, value string) []string {
	prefix := key + "="
	for i, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			env[i] = prefix + value
			return env
		}
	}
	return append(env, prefix+value)
}

// spawn runs the assistant binary in the foreground with the parent's
// stdio streams attached directly. Captured or piped streams corrupt the
// assistant's interactive terminal handling, so the child must share the
// parent's TTY; interrupts from the shell reach it through the
// controlling terminal's process group without any handling here.
func (l *Launcher) spawn(_ context.Context, args []string, env []string) (int, error) {
	cmd := exec.Command(l.command, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = env

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		if code < 0 {
			code = fallbackExitCode
		}
		return code, nil
	}
	return fallbackExitCode, fmt.Errorf("launcher: start %s: %w", l.command, err)
}
