// Package cleanup prunes growth-prone state under provider config
// directories: size-triggered cache deletion, line-gated history
// truncation, oversized session-transcript truncation, and the scheduled
// full memory reset.
//
// Every operation here is best-effort. Cleanup is an optimization, never
// a correctness requirement for a launch, so filesystem errors are
// logged and swallowed.
package cleanup

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/starford/raido/internal/fsutil"
	"github.com/starford/raido/internal/paths"
)

// Rule names a growth-prone path relative to a config directory and the
// byte threshold above which it is cleaned. Truncate rules keep the tail
// of the file instead of deleting the subtree.
type Rule struct {
	Path     string
	MaxBytes int64
	Truncate bool
}

// Policy carries every cleanup constant so the behaviour stays testable
// independent of the tuned values.
type Policy struct {
	CacheRules []Rule

	// Trailing fraction kept when truncating the history file, and the
	// record count below which truncation never fires.
	HistoryKeepRatio float64
	MinLines         int

	// Session transcript scan: one level of per-project directories
	// under SessionDir, each holding newline-delimited transcripts.
	SessionDir       string
	SessionMaxBytes  int64
	SessionKeepRatio float64

	// Full memory reset: gate interval and the high-churn directories
	// wiped relative to the config directory.
	ResetInterval time.Duration
	ResetTargets  []string
}

// DefaultPolicy returns the tuned constants for the assistant's cache
// layout.
func DefaultPolicy() Policy {
	return Policy{
		CacheRules: []Rule{
			{Path: "file-history", MaxBytes: 50 << 20},
			{Path: "shell-snapshots", MaxBytes: 20 << 20},
			{Path: "statsig", MaxBytes: 20 << 20},
			{Path: "todos", MaxBytes: 10 << 20},
			{Path: "history.jsonl", MaxBytes: 20 << 20, Truncate: true},
		},
		HistoryKeepRatio: 0.3,
		MinLines:         10,
		SessionDir:       "projects",
		SessionMaxBytes:  10 << 20,
		SessionKeepRatio: 0.2,
		ResetInterval:    24 * time.Hour,
		ResetTargets: []string{
			"projects",
			"file-history",
			"session-env",
			"plans",
			"todos",
		},
	}
}

// Cleaner applies a Policy to config directories.
type Cleaner struct {
	resolver *paths.Resolver
	logger   *slog.Logger
	policy   Policy
}

// New creates a Cleaner.
func New(resolver *paths.Resolver, logger *slog.Logger, policy Policy) *Cleaner {
	return &Cleaner{resolver: resolver, logger: logger, policy: policy}
}

// Policy returns the active policy.
func (c *Cleaner) Policy() Policy {
	return c.policy
}

// CleanCaches applies the threshold table to configDir. Subtrees over
// their byte threshold are deleted; the history file is truncated to its
// trailing fraction instead, and only when it holds more than the
// minimum record count regardless of its byte size.
func (c *Cleaner) CleanCaches(configDir string) {
	dir := c.resolver.Expand(configDir)
	for _, rule := range c.policy.CacheRules {
		target := filepath.Join(dir, rule.Path)
		size := c.resolver.SizeOf(target)
		if size <= rule.MaxBytes {
			continue
		}
		if rule.Truncate {
			saved, err := truncateKeepTail(target, c.policy.HistoryKeepRatio, c.policy.MinLines)
			if err != nil {
				c.logger.Warn("cleanup: truncate failed",
					slog.String("path", target),
					slog.String("error", err.Error()))
				continue
			}
			if saved > 0 {
				c.logger.Info("cleanup: truncated history",
					slog.String("path", target),
					slog.Int64("bytes_saved", saved))
			}
			continue
		}
		if err := os.RemoveAll(target); err != nil {
			c.logger.Warn("cleanup: remove failed",
				slog.String("path", target),
				slog.String("error", err.Error()))
			continue
		}
		c.logger.Info("cleanup: removed cache",
			slog.String("path", target),
			slog.Int64("bytes", size))
	}
}

// TruncateSessions scans the per-project transcript tree under configDir
// and truncates every transcript over the session byte threshold to its
// trailing fraction. Returns the number of files truncated and the
// total bytes saved.
func (c *Cleaner) TruncateSessions(configDir string) (cleaned int, saved int64) {
	root := filepath.Join(c.resolver.Expand(configDir), c.policy.SessionDir)
	projects, err := os.ReadDir(root)
	if err != nil {
		return 0, 0
	}
	for _, project := range projects {
		if !project.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(root, project.Name()))
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.IsDir() || !strings.HasSuffix(f.Name(), ".jsonl") {
				continue
			}
			p := filepath.Join(root, project.Name(), f.Name())
			info, err := f.Info()
			if err != nil || info.Size() <= c.policy.SessionMaxBytes {
				continue
			}
			n, err := truncateKeepTail(p, c.policy.SessionKeepRatio, c.policy.MinLines)
			if err != nil {
				c.logger.Warn("cleanup: session truncate failed",
					slog.String("path", p),
					slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				cleaned++
				saved += n
			}
		}
	}
	return cleaned, saved
}

// ResetMemory wipes the high-churn reset targets under configDir and
// returns the bytes freed. The caller owns the gate: the reset timestamp
// must be advanced whether or not anything was freed.
func (c *Cleaner) ResetMemory(configDir string) (freed int64) {
	dir := c.resolver.Expand(configDir)
	for _, target := range c.policy.ResetTargets {
		p := filepath.Join(dir, target)
		size := c.resolver.SizeOf(p)
		if _, err := os.Lstat(p); err != nil {
			continue
		}
		if err := os.RemoveAll(p); err != nil {
			c.logger.Warn("cleanup: reset remove failed",
				slog.String("path", p),
				slog.String("error", err.Error()))
			continue
		}
		freed += size
	}
	return freed
}

// truncateKeepTail rewrites a newline-delimited file keeping only the
// trailing fraction of its records. Files at or below minLines records
// are left untouched; the kept tail never drops below minLines. Returns
// bytes saved.
func truncateKeepTail(path string, ratio float64, minLines int) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	trailingNewline := strings.HasSuffix(string(data), "\n")
	text := strings.TrimSuffix(string(data), "\n")
	if text == "" {
		return 0, nil
	}
	lines := strings.Split(text, "\n")
	if len(lines) <= minLines {
		return 0, nil
	}

	keep := int(float64(len(lines)) * ratio)
	if keep < minLines {
		keep = minLines
	}
	if keep >= len(lines) {
		return 0, nil
	}

	tail := strings.Join(lines[len(lines)-keep:], "\n")
	if trailingNewline {
		tail += "\n"
	}
	if err := fsutil.WriteAtomic(path, []byte(tail), 0o600); err != nil {
		return 0, err
	}
	return int64(len(data) - len(tail)), nil
}
