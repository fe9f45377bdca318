package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/raido/internal"
	"github.com/starford/raido/internal/provider"
	pkgconfig "github.com/starford/raido/pkg/config"
)

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// newApp loads configuration (falling back to defaults when no config
// file exists) and wires the application.
func newApp(cmd *cli.Command) (*internal.App, error) {
	configPath := expandHome(cmd.String("config"))

	cfg := internal.NewDefaultConfig()
	if pkgconfig.Exists(configPath) {
		if err := pkgconfig.Load(configPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	return internal.NewApp(internal.WithConfig(cfg))
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Launch the assistant with a provider's environment and config directory",
		ArgsUsage: "[-- assistant args]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "provider",
				Aliases: []string{"p"},
				Usage:   "Provider name (defaults to the current selection)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			app, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			code, err := app.Launch(ctx, cmd.String("provider"), cmd.Args().Slice())
			if err != nil {
				return err
			}
			if code != 0 {
				return cli.Exit("", code)
			}
			return nil
		},
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List provider profiles",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			app, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			providers, current, err := app.List()
			if err != nil {
				return err
			}
			for _, p := range providers {
				marker := " "
				if p.Name == current {
					marker = "*"
				}
				fmt.Printf("%s %-16s %-8s %-24s %s\n", marker, p.Name, p.Kind, p.ConfigDir, p.Description)
			}
			return nil
		},
	}
}

func useCommand() *cli.Command {
	return &cli.Command{
		Name:      "use",
		Usage:     "Select the current provider",
		ArgsUsage: "<name>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			name := cmd.Args().First()
			if name == "" {
				return fmt.Errorf("usage: raido use <name>")
			}
			app, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Store().SetCurrent(name); err != nil {
				return err
			}
			fmt.Printf("current provider: %s\n", name)
			return nil
		},
	}
}

func addCommand() *cli.Command {
	return &cli.Command{
		Name:  "add",
		Usage: "Add a provider profile",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Required: true, Usage: "Profile name"},
			&cli.StringFlag{Name: "kind", Value: provider.KindAPIKey, Usage: "oauth or api_key"},
			&cli.StringFlag{Name: "dir", Required: true, Usage: "Config directory, e.g. ~/.claude-glm"},
			&cli.StringFlag{Name: "description", Usage: "Free-form description"},
			&cli.StringSliceFlag{Name: "env", Usage: "Credential entry KEY=VALUE (repeatable)"},
			&cli.BoolFlag{Name: "memory-reset", Usage: "Enable the scheduled memory reset"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			env := map[string]string{}
			for _, kv := range cmd.StringSlice("env") {
				key, value, ok := strings.Cut(kv, "=")
				if !ok {
					return fmt.Errorf("invalid --env entry %q, want KEY=VALUE", kv)
				}
				env[key] = value
			}
			p := provider.Provider{
				Name:        cmd.String("name"),
				Kind:        cmd.String("kind"),
				Description: cmd.String("description"),
				ConfigDir:   cmd.String("dir"),
				MemoryReset: cmd.Bool("memory-reset"),
			}
			if len(env) > 0 {
				p.Env = env
			}

			app, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Store().Add(p); err != nil {
				return err
			}
			fmt.Printf("added provider: %s\n", p.Name)
			return nil
		},
	}
}

func removeCommand() *cli.Command {
	return &cli.Command{
		Name:      "remove",
		Usage:     "Remove a provider profile",
		ArgsUsage: "<name>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			name := cmd.Args().First()
			if name == "" {
				return fmt.Errorf("usage: raido remove <name>")
			}
			app, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Store().Remove(name); err != nil {
				return err
			}
			fmt.Printf("removed provider: %s\n", name)
			return nil
		},
	}
}

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Sync shared resources and MCP servers into provider config directories",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "provider",
				Aliases: []string{"p"},
				Usage:   "Sync a single provider (defaults to all)",
			},
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Replace real files and drop target-only MCP entries",
			},
			&cli.BoolFlag{
				Name:  "watch",
				Usage: "Keep running and re-sync when the canonical tree changes",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			app, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			return app.Sync(ctx, cmd.String("provider"), cmd.Bool("force"), cmd.Bool("watch"))
		},
	}
}

func cleanCommand() *cli.Command {
	return &cli.Command{
		Name:  "clean",
		Usage: "Run the size-triggered cache cleanup now",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "provider",
				Aliases: []string{"p"},
				Usage:   "Provider name (defaults to the current selection)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			app, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			return app.Clean(cmd.String("provider"))
		},
	}
}

func resetCommand() *cli.Command {
	return &cli.Command{
		Name:  "reset",
		Usage: "Wipe a provider's high-churn state (gated to once per interval)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "provider",
				Aliases: []string{"p"},
				Usage:   "Provider name (defaults to the current selection)",
			},
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Ignore the reset gate (the gate still advances)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			app, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			return app.Reset(cmd.String("provider"), cmd.Bool("force"))
		},
	}
}

func main() {
	cmd := &cli.Command{
		Name:  "raido",
		Usage: "Provider profile switcher for the Claude Code CLI with symlinked resource sync and scheduled state cleanup",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "~/.config/raido/config.yaml",
				Value:       "~/.config/raido/config.yaml",
				Sources:     cli.EnvVars("RAIDO_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			runCommand(),
			listCommand(),
			useCommand(),
			addCommand(),
			removeCommand(),
			syncCommand(),
			cleanCommand(),
			resetCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
