package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"irfuncs/internal/config"
)

var rootCmd = &cobra.Command{
	Use:           "irfuncs",
	Short:         "Derive functions from binary IR documents",
	Long:          `irfuncs reads an IR document (JSON, YAML or msgpack), derives function views from its aux data and CFG, and lists, shows or exports them. The lift command builds such a document from an ELF file's function symbols.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd)
	},
}

var (
	cfg    = config.Default()
	logger = slog.New(slog.DiscardHandler)
)

func main() {
	rootCmd.Version = version

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(liftCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().String("config", "", "config file (default: nearest irfuncs.toml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable colored output")
	rootCmd.PersistentFlags().Int("jobs", 0, "modules derived concurrently (0 = config)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads the config, then applies flag overrides and builds the logger.
func setup(cmd *cobra.Command) error {
	path, _ := cmd.Flags().GetString("config")
	var err error
	if path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, path, err = config.Discover(".")
	}
	if err != nil {
		return err
	}

	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	if jobs, _ := cmd.Flags().GetInt("jobs"); jobs > 0 {
		cfg.Derive.Jobs = jobs
	}
	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	if path != "" {
		logger.Debug("loaded config", "path", path)
	}

	if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
		color.NoColor = true
	}
	return nil
}
