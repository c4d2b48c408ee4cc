package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mateuskih/Trabalho-1-UDP/internal"
)

type ctxKey string

const clientCfgKey ctxKey = "clientConfig"
const clientCfgPathKey ctxKey = "clientConfigPath"

func NewRootCommand() *cobra.Command {
	var configPath string
	var logLevel string

	rootCmd := &cobra.Command{
		Use:   "udpcopy",
		Short: "udpcopy fetches files from a udpcopy server over UDP",
		Long: `udpcopy downloads files over a stop-and-wait UDP protocol with CRC32
integrity checks, per-segment acknowledgement, simulated loss for testing,
and post-transfer recovery of missing segments.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := internal.LoadClientConfig(configPath)
			if err != nil {
				return fmt.Errorf("failed to load client config: %w", err)
			}

			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			if err := internal.ConfigureLogger(cfg.LogLevel); err != nil {
				internal.Warn("invalid log level, defaulting to info", internal.Fields{
					internal.FieldError: err.Error(),
				})
			}

			cfgPath := configPath
			if strings.TrimSpace(cfgPath) == "" {
				home, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				cfgPath = filepath.Join(home, ".udpcopy", "client_config.toml")
			}

			ctx := context.WithValue(cmd.Context(), clientCfgKey, cfg)
			ctx = context.WithValue(ctx, clientCfgPathKey, cfgPath)
			cmd.SetContext(ctx)

			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to client config file (TOML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")

	rootCmd.AddCommand(GetCommand())
	rootCmd.AddCommand(HistoryCommand())
	rootCmd.AddCommand(GenFileCommand())
	rootCmd.AddCommand(ConfigCommand())

	return rootCmd
}

// GetClientConfig returns the config loaded by PersistentPreRunE.
func GetClientConfig(cmd *cobra.Command) *internal.ClientConfig {
	if v := cmd.Context().Value(clientCfgKey); v != nil {
		if cfg, ok := v.(*internal.ClientConfig); ok {
			return cfg
		}
	}
	return nil
}

func getClientConfigPath(cmd *cobra.Command) string {
	if v := cmd.Context().Value(clientCfgPathKey); v != nil {
		if path, ok := v.(string); ok {
			return path
		}
	}
	return ""
}
