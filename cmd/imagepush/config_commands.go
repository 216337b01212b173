package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"imagepush/internal/config"
	"imagepush/internal/preflight"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigValidateCommand(ctx))
	configCmd.AddCommand(newConfigInitCommand())

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("determine default config path: %w", err)
				}
				target = defaultPath
			} else {
				expanded, err := config.ExpandPath(target)
				if err != nil {
					return fmt.Errorf("resolve config path: %w", err)
				}
				target = expanded
			}

			dir := filepath.Dir(target)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create config directory %q: %w", dir, err)
			}

			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				} else if !os.IsNotExist(err) {
					return fmt.Errorf("check config path: %w", err)
				}
			}

			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Edit the file to set api.base_url and api.api_key (or export IMAGEPUSH_API_URL and IMAGEPUSH_API_KEY).")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	var checkAPI bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			fmt.Fprintf(out, "Config path: %s\n", ctx.configPath)
			if !ctx.configSeen {
				fmt.Fprintln(out, "Config file did not exist; defaults were used")
			}

			for _, line := range renderSectionHeader("Settings", colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out, renderStatusLine("API key set", statusInfo, yesNo(cfg.API.APIKey != ""), colorize))
			fmt.Fprintln(out, renderStatusLine("Failure policy", statusInfo, cfg.Sync.FailurePolicy, colorize))
			fmt.Fprintln(out, renderStatusLine("Concurrency", statusInfo, fmt.Sprintf("%d", cfg.Sync.Concurrency), colorize))

			results := []preflight.Result{}
			if cfg.Paths.SourceDir != "" {
				results = append(results, preflight.CheckSourceDirectory("Source directory", cfg.Paths.SourceDir))
			}
			if cfg.Paths.LedgerPath != "" {
				results = append(results, preflight.CheckDirectoryAccess("Ledger directory", filepath.Dir(cfg.Paths.LedgerPath)))
			}
			if checkAPI {
				results = append(results, preflight.CheckAPI(cmd.Context(), cfg.API.BaseURL, cfg.API.APIKey))
			}
			if len(results) > 0 {
				for _, line := range renderSectionHeader("Checks", colorize) {
					fmt.Fprintln(out, line)
				}
				for _, line := range preflightLines(results, colorize) {
					fmt.Fprintln(out, line)
				}
			}

			if err := preflight.FirstFailure(results); err != nil {
				return err
			}
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}

	cmd.Flags().BoolVar(&checkAPI, "check-api", false, "Also verify that the remote API is reachable")
	return cmd
}
