package main

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Cipahi/ng-toolkit/internal/project"
	"github.com/Cipahi/ng-toolkit/internal/tree"
)

const (
	sentinelStart = "# ngt-pwa:start"
	sentinelEnd   = "# ngt-pwa:end"
	configName    = ".ngt.yaml"
)

// newInitCmd implements `ngt-pwa init`, which writes (or updates) the
// managed section of the workspace config file.
func newInitCmd() *cobra.Command {
	var (
		projectName string
		directory   string
		dryRun      bool
	)

	cmd := &cobra.Command{
		Use:   "init [workspace]",
		Short: "Write a " + configName + " for the workspace",
		Long: `Write the target project to <workspace>/` + configName + `. The settings are
wrapped in sentinel comments so they can be updated in place on subsequent
runs without touching surrounding content. Creates the file if it does not
exist. The project defaults to defaultProject in angular.json, or the only
project the workspace declares.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := "."
			if len(args) > 0 {
				workspace = args[0]
			}
			root, err := workspaceRoot(workspace)
			if err != nil {
				return err
			}

			if projectName == "" {
				projectName, err = inferProject(root, directory)
				if err != nil {
					return err
				}
			}

			section := generateSection(projectName, directory)
			p := filepath.Join(root, configName)
			existing, _ := os.ReadFile(p)
			updated := applySection(string(existing), section)

			if dryRun {
				_, _ = fmt.Fprint(cmd.OutOrStdout(), updated)
				return nil
			}
			if err := os.WriteFile(p, []byte(updated), 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", p, err)
			}
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "wrote ngt-pwa section to %s\n", p)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&projectName, "client-project", "", "project to record; inferred from angular.json when empty")
	f.StringVar(&directory, "directory", "", "project directory inside the workspace")
	f.BoolVar(&dryRun, "dry-run", false, "print the resulting file without writing it")
	return cmd
}

func inferProject(root, directory string) (string, error) {
	rel := path.Join(directory, project.WorkspaceFile)
	content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", rel, err)
	}
	m := tree.NewMem()
	m.Add(rel, string(content))

	ws, err := project.ReadWorkspace(m, directory)
	if err != nil {
		return "", err
	}
	name, ok := ws.DefaultProjectName()
	if !ok {
		return "", fmt.Errorf("%s declares %d projects and no defaultProject; pass --client-project", rel, len(ws.Projects))
	}
	return name, nil
}

// generateSection returns the sentinel-wrapped settings block.
func generateSection(projectName, directory string) string {
	var b strings.Builder
	b.WriteString(sentinelStart + "\n")
	fmt.Fprintf(&b, "project: %q\n", projectName)
	if directory != "" {
		fmt.Fprintf(&b, "directory: %q\n", directory)
	}
	b.WriteString(sentinelEnd)
	return b.String()
}

// applySection inserts section into content, replacing an existing sentinel
// block if present or appending if not. It is a pure function for easy testing.
func applySection(content, section string) string {
	start := strings.Index(content, sentinelStart)
	end := strings.Index(content, sentinelEnd)

	if start >= 0 && end > start {
		return content[:start] + section + content[end+len(sentinelEnd):]
	}

	if content == "" {
		return section + "\n"
	}
	// Append, ensuring a blank line separator.
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return content + "\n" + section + "\n"
}
