// Package config loads ngt-pwa settings from defaults, a workspace config
// file, NGT_ environment variables and command-line flags.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/Cipahi/ng-toolkit/internal/model"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "NGT_"

// Output formats.
const (
	FormatText = "text"
	FormatTOON = "toon"
)

// DefaultInstallCommand runs the install action.
const DefaultInstallCommand = "npm install"

// configNames are looked up in the workspace root, in order.
var configNames = []string{".ngt.yaml", ".ngt.yml"}

// Config is the resolved configuration of one run.
type Config struct {
	Directory        string `koanf:"directory"`
	Project          string `koanf:"project"`
	ServerModule     string `koanf:"server_module"`
	SkipInstall      bool   `koanf:"skip_install"`
	DisableTelemetry bool   `koanf:"disable_telemetry"`
	TelemetryAPIKey  string `koanf:"telemetry_api_key"`
	Verbose          bool   `koanf:"verbose"`
	Format           string `koanf:"format"`
	DryRun           bool   `koanf:"dry_run"`
	InstallCommand   string `koanf:"install_command"`

	// Workspace is the directory the tree is loaded from.
	Workspace string `koanf:"-"`
	// File is the config file that was read, if any.
	File string `koanf:"-"`
}

// Load resolves configuration for the workspace rooted at root.
// Precedence (highest to lowest): flags > env vars > config file > defaults.
// Only flags that were explicitly set take part.
func Load(root, cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(map[string]any{
		"directory":         "",
		"skip_install":      false,
		"disable_telemetry": false,
		"verbose":           false,
		"format":            FormatText,
		"dry_run":           false,
		"install_command":   DefaultInstallCommand,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	cfgFile = findConfigFile(root, cfgFile)
	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
	}

	// NGT_SERVER_MODULE -> server_module
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed || f.Name == "config" {
				return "", nil
			}
			key := strings.ReplaceAll(f.Name, "-", "_")
			// --client-project is the only name the CLI has for the project
			if key == "client_project" {
				key = "project"
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.Workspace = root
	cfg.File = cfgFile
	cfg.Format = strings.ToLower(cfg.Format)
	return &cfg, nil
}

func findConfigFile(root, explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range configNames {
		candidate := filepath.Join(root, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// Validate checks that the configuration can drive a run.
func (c *Config) Validate() error {
	if c.Project == "" {
		return fmt.Errorf("project is required\nHint: pass --client-project or set project in %s", configNames[0])
	}
	switch c.Format {
	case FormatText, FormatTOON:
	default:
		return fmt.Errorf("unknown format %q (want %s or %s)", c.Format, FormatText, FormatTOON)
	}
	if !c.SkipInstall && !c.DryRun && strings.TrimSpace(c.InstallCommand) == "" {
		return fmt.Errorf("install_command is empty; set skip_install to skip the install step")
	}
	return nil
}

// Options returns the patcher options for this configuration.
func (c *Config) Options() model.Options {
	return model.Options{
		Directory:        c.Directory,
		Project:          c.Project,
		ServerModule:     c.ServerModule,
		SkipInstall:      c.SkipInstall,
		DisableTelemetry: c.DisableTelemetry,
	}
}

type loggerKey struct{}

// WithLogger stores l on ctx.
func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// GetLogger retrieves the logger stored by WithLogger.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.New(slog.DiscardHandler)
}
