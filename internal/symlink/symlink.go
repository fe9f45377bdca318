// Package symlink keeps shared resources in provider config directories
// linked back to the canonical resource tree.
package symlink

import (
	"fmt"
	"os"
	"path/filepath"
)

// Status of one resource after a sync pass.
type Status string

const (
	StatusCreated         Status = "created"
	StatusAlreadyLinked   Status = "already_linked"
	StatusSkipped         Status = "skipped"
	StatusForcedOverwrite Status = "forced_overwrite"
)

// Resource names a shared file or directory that every non-canonical
// provider config directory must carry as a symlink. Source, when set,
// overrides the canonical root as the link target (for resources whose
// canonical location lives outside the tree, like the global ignore
// file in the home directory).
type Resource struct {
	Name   string
	Source string
}

// Resources is the fixed, ordered descriptor list. Every sync pass
// produces exactly one result per entry, in this order.
var Resources = []Resource{
	{Name: "commands"},
	{Name: "agents"},
	{Name: "skills"},
	{Name: "output-styles"},
	{Name: "plugins"},
	{Name: "CLAUDE.md"},
	{Name: "settings.json"},
	{Name: ".claudeignore", Source: "~/.claudeignore"},
}

// Result reports the outcome for a single resource.
type Result struct {
	Resource string
	Status   Status
	Err      error
}

// Expander resolves home-relative paths (see paths.Resolver).
type Expander interface {
	Expand(path string) string
}

// EnsureLink makes target a symlink pointing at source.
//
// A missing source is a no-op. A symlink already pointing at source is
// left alone. A symlink pointing elsewhere is relinked. A real file or
// directory at target is preserved unless force is set, in which case it
// is removed (recursively) and replaced. Missing parent directories of
// target are created. Returns whether a link was created.
func EnsureLink(source, target string, force bool) (bool, error) {
	if _, err := os.Lstat(source); err != nil {
		return false, nil
	}

	if info, err := os.Lstat(target); err == nil {
		if info.Mode()&os.ModeSymlink != 0 {
			dest, readErr := os.Readlink(target)
			if readErr == nil && dest == source {
				return false, nil
			}
			if err := os.Remove(target); err != nil {
				return false, fmt.Errorf("symlink: remove stale link %s: %w", target, err)
			}
		} else {
			if !force {
				return false, nil
			}
			if err := os.RemoveAll(target); err != nil {
				return false, fmt.Errorf("symlink: remove %s: %w", target, err)
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return false, fmt.Errorf("symlink: mkdir for %s: %w", target, err)
	}
	if err := os.Symlink(source, target); err != nil {
		return false, fmt.Errorf("symlink: link %s -> %s: %w", target, source, err)
	}
	return true, nil
}

// SyncAll links every descriptor resource from sourceRoot into targetDir.
// It returns nil without side effects when targetDir resolves to the
// same path as sourceRoot: a provider cannot be synced into itself.
//
// Failures on individual resources are recorded in the result rather
// than aborting the pass; every descriptor yields exactly one result.
func SyncAll(exp Expander, sourceRoot, targetDir string, force bool) []Result {
	src := filepath.Clean(exp.Expand(sourceRoot))
	dst := filepath.Clean(exp.Expand(targetDir))
	if src == dst {
		return nil
	}

	results := make([]Result, 0, len(Resources))
	for _, res := range Resources {
		source := filepath.Join(src, res.Name)
		if res.Source != "" {
			source = exp.Expand(res.Source)
		}
		target := filepath.Join(dst, res.Name)
		results = append(results, syncOne(res.Name, source, target, force))
	}
	return results
}

func syncOne(name, source, target string, force bool) Result {
	if _, err := os.Lstat(source); err != nil {
		return Result{Resource: name, Status: StatusSkipped}
	}

	replacedReal := false
	if info, err := os.Lstat(target); err == nil {
		if info.Mode()&os.ModeSymlink != 0 {
			if dest, readErr := os.Readlink(target); readErr == nil && dest == source {
				return Result{Resource: name, Status: StatusAlreadyLinked}
			}
		} else {
			replacedReal = true
		}
	}

	created, err := EnsureLink(source, target, force)
	if err != nil {
		return Result{Resource: name, Status: StatusSkipped, Err: err}
	}
	switch {
	case !created:
		return Result{Resource: name, Status: StatusSkipped}
	case replacedReal && force:
		return Result{Resource: name, Status: StatusForcedOverwrite}
	default:
		return Result{Resource: name, Status: StatusCreated}
	}
}
