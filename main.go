package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/goKeySwap/config"
	"github.com/goKeySwap/logging"
)

type rootOptions struct {
	configPath string
	logLevel   string
	retry      time.Duration
	noWatch    bool
	noLogFile  bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "goKeySwap",
		Short: "Remap keyboard keys system-wide",
		Long: `goKeySwap intercepts key presses before any application sees them and
replaces the key codes listed in its configuration.

On linux it needs write access to /dev/uinput and read access to
/dev/input/event*. On macOS the binary must be granted Accessibility access.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), opts)
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default ~/.config/goKeySwap/config.yaml)")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "override log.level from the config")
	cmd.Flags().DurationVar(&opts.retry, "retry", 0, "retry starting the tap at this interval while it is not running (0 disables)")
	cmd.Flags().BoolVar(&opts.noWatch, "no-watch", false, "do not reload when the config file changes")
	cmd.Flags().BoolVar(&opts.noLogFile, "no-log-file", false, "log to the console only")

	cmd.AddCommand(newInitCmd(opts), newMappingsCmd(opts), newDevicesCmd(opts))
	return cmd
}

func newInitCmd(opts *rootOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveConfigPath(opts.configPath)
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.WriteDefault(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Default configuration written to %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	return cmd
}

func newMappingsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mappings",
		Short: "Show the configured key mappings",
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, err := config.NewLoader(opts.configPath)
			if err != nil {
				return err
			}
			cfg, _, err := loader.Load()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderMappings(cfg))
			return nil
		},
	}
}

func newDevicesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List the keyboards that would be grabbed (linux)",
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, err := config.NewLoader(opts.configPath)
			if err != nil {
				return err
			}
			cfg, _, err := loader.Load()
			if err != nil {
				return err
			}
			return printDevices(cmd.OutOrStdout(), cfg)
		},
	}
}

func resolveConfigPath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	return config.DefaultPath()
}

func newLogger(opts *rootOptions, cfg config.Config, configPath string) (*logging.Logger, error) {
	level := cfg.Log.Level
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	dir := ""
	if !opts.noLogFile {
		dir = filepath.Join(filepath.Dir(configPath), "logs")
	}
	return logging.New(logging.Options{Level: level, Dir: dir})
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
