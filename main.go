// ngt-pwa adds service worker update handling to an Angular workspace.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Cipahi/ng-toolkit/internal/config"
	"github.com/Cipahi/ng-toolkit/internal/model"
	"github.com/Cipahi/ng-toolkit/internal/pwa"
	"github.com/Cipahi/ng-toolkit/internal/telemetry"
	"github.com/Cipahi/ng-toolkit/internal/toon"
	"github.com/Cipahi/ng-toolkit/internal/tree"
)

var version = "dev"

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "ngt-pwa [workspace]",
		Short: "Add service worker update handling to an Angular project",
		Long: `ngt-pwa patches an Angular CLI workspace that was prepared with
'ng add @angular/pwa': it registers NgtPwaMockModule in the server module,
injects SwUpdate into the bootstrap component and checks for updates in
ngOnInit. The workspace defaults to the current directory.`,
		Version:       version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := "."
			if len(args) > 0 {
				workspace = args[0]
			}
			return patch(cmd, workspace, cfgFile)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	f := cmd.Flags()
	f.String("directory", "", "project directory inside the workspace")
	f.String("client-project", "", "name of the target project in angular.json")
	f.String("server-module", "", "server NgModule file; derived from the server build when empty")
	f.Bool("skip-install", false, "do not run the install command")
	f.Bool("disable-telemetry", false, "do not report failures")
	f.StringVar(&cfgFile, "config", "", "config file (default <workspace>/.ngt.yaml)")
	f.BoolP("verbose", "v", false, "debug logging")
	f.String("format", config.FormatText, "report format: text or toon")
	f.Bool("dry-run", false, "report changes without writing files or running actions")
	f.String("install-command", config.DefaultInstallCommand, "command run by the install action")

	cmd.AddCommand(newVersionCmd(), newInitCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "ngt-pwa %s\n", version)
		},
	}
}

func patch(cmd *cobra.Command, workspace, cfgFile string) error {
	root, err := workspaceRoot(workspace)
	if err != nil {
		return err
	}

	cfg, err := config.Load(root, cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	ctx := config.WithLogger(cmd.Context(), log)
	if cfg.File != "" {
		log.DebugContext(ctx, "using config file", "path", cfg.File)
	}

	m, err := tree.Load(root)
	if err != nil {
		return err
	}

	rule := &pwa.Rule{Log: log, Reporter: reporter(cfg, log)}
	res, err := rule.Apply(ctx, m, cfg.Options())
	if err != nil {
		var perr *model.Error
		if cfg.Verbose && errors.As(err, &perr) && perr.FileContent != "" {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "--- scanned content ---\n%s\n---\n", perr.FileContent)
		}
		return err
	}

	if !cfg.DryRun {
		if err := tree.Commit(root, m); err != nil {
			return err
		}
	}

	report := &model.Report{
		Project:      cfg.Project,
		ServerModule: res.ServerModule,
		Component:    res.Component.ClassName,
		Changes:      m.Changes(),
		Actions:      res.Actions,
	}
	switch cfg.Format {
	case config.FormatTOON:
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), toon.Encode(report))
	default:
		writeText(cmd.OutOrStdout(), report, cfg.DryRun)
	}

	if cfg.DryRun {
		return nil
	}
	for _, a := range res.Actions {
		if err := runAction(ctx, root, cfg.InstallCommand, a, cmd.ErrOrStderr()); err != nil {
			return err
		}
	}
	return nil
}

func workspaceRoot(workspace string) (string, error) {
	root, err := filepath.Abs(workspace)
	if err != nil {
		return "", fmt.Errorf("resolving workspace: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return "", fmt.Errorf("workspace path: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s: not a directory", root)
	}
	return root, nil
}

func reporter(cfg *config.Config, log *slog.Logger) telemetry.Reporter {
	switch {
	case cfg.DisableTelemetry:
		return nil
	case cfg.DryRun:
		return telemetry.Logging{Log: log}
	case cfg.TelemetryAPIKey != "":
		return telemetry.NewBugsnag(cfg.TelemetryAPIKey, version)
	}
	return telemetry.Nop{}
}

// runAction executes one post-commit action and waits for it.
func runAction(ctx context.Context, root, command string, a model.Action, out io.Writer) error {
	switch a.Kind {
	case model.Install:
		fields := strings.Fields(command)
		if len(fields) == 0 {
			return fmt.Errorf("install command is empty")
		}
		c := exec.CommandContext(ctx, fields[0], fields[1:]...)
		c.Dir = filepath.Join(root, filepath.FromSlash(a.Directory))
		c.Stdout = out
		c.Stderr = out
		config.GetLogger(ctx).InfoContext(ctx, "running install", "command", command, "dir", c.Dir)
		if err := c.Run(); err != nil {
			return fmt.Errorf("%s: %w", command, err)
		}
		return nil
	}
	return fmt.Errorf("unknown action %q", a.Kind)
}
