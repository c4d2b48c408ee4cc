package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/mateuskih/Trabalho-1-UDP/internal"
	"github.com/mateuskih/Trabalho-1-UDP/pkg/wire"
)

func ConfigCommand() *cobra.Command {
	var serverConfigPath string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View or update udpcopy configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.PersistentFlags().StringVar(&serverConfigPath, "server-config", "", "Path to the udpcopy server config file")
	cmd.AddCommand(configShowCommand(&serverConfigPath))
	cmd.AddCommand(configSetCommand(&serverConfigPath))
	return cmd
}

func configShowCommand(serverConfigPath *string) *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the client or server configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			scope := strings.ToLower(strings.TrimSpace(target))
			if scope == "" {
				scope = "client"
			}
			switch scope {
			case "client":
				cfg := GetClientConfig(cmd)
				if cfg == nil {
					return fmt.Errorf("client config unavailable")
				}
				return renderConfigTable(pterm.TableData{
					{"Setting", "Value"},
					{"request_timeout_ms", fmt.Sprintf("%d", cfg.RequestTimeoutMs)},
					{"idle_timeout_ms", fmt.Sprintf("%d", cfg.IdleTimeoutMs)},
					{"recover_attempts", fmt.Sprintf("%d", cfg.RecoverAttempts)},
					{"recover_timeout_ms", fmt.Sprintf("%d", cfg.RecoverTimeoutMs)},
					{"loss_percent", fmt.Sprintf("%d", cfg.LossPercent)},
					{"loss_seed", fmt.Sprintf("%d", cfg.LossSeed)},
					{"auto_recover", fmt.Sprintf("%t", cfg.AutoRecover)},
					{"socket_buffer_size", fmt.Sprintf("%d", cfg.SocketBufferSize)},
					{"output_dir", cfg.OutputDir},
					{"report_dir", cfg.ReportDir},
					{"history_file", cfg.HistoryFile},
					{"client_uuid", cfg.ClientUuid},
					{"log_level", cfg.LogLevel},
				})
			case "server":
				path := strings.TrimSpace(*serverConfigPath)
				cfg, err := internal.LoadServerConfig(path)
				if err != nil {
					return fmt.Errorf("load server config: %w", err)
				}
				return renderConfigTable(pterm.TableData{
					{"Setting", "Value"},
					{"port", fmt.Sprintf("%d", cfg.Port)},
					{"root_dir", cfg.RootDir},
					{"segment_size", fmt.Sprintf("%d", cfg.SegmentSize)},
					{"request_timeout_ms", fmt.Sprintf("%d", cfg.RequestTimeoutMs)},
					{"retransmit_timeout_ms", fmt.Sprintf("%d", cfg.RetransmitTimeout)},
					{"max_retries", fmt.Sprintf("%d", cfg.MaxRetries)},
					{"recovery_window_ms", fmt.Sprintf("%d", cfg.RecoveryWindowMs)},
					{"send_pacing_ms", fmt.Sprintf("%d", cfg.SendPacingMs)},
					{"udp_read_timeout_ms", fmt.Sprintf("%d", cfg.UDPReadTimeoutMs)},
					{"udp_queue_depth", fmt.Sprintf("%d", cfg.UDPQueueDepth)},
					{"metrics_addr", cfg.MetricsAddr},
					{"server_id", cfg.ServerId},
					{"log_level", cfg.LogLevel},
				})
			default:
				return fmt.Errorf("--target must be either client or server")
			}
		},
	}
	cmd.Flags().StringVar(&target, "target", "client", "Which config to show: client or server")
	return cmd
}

func renderConfigTable(rows pterm.TableData) error {
	out, err := pterm.DefaultTable.WithHasHeader().WithData(rows).Srender()
	if err != nil {
		return err
	}
	pterm.Println(out)
	return nil
}

func configSetCommand(serverConfigPath *string) *cobra.Command {
	var target string

	var clientOutputDir string
	var clientReportDir string
	var clientLoss int
	var clientSeed int64
	var clientAutoRecover bool
	var clientLogLevel string

	var serverPort int
	var serverRootDir string
	var serverSegmentSize int
	var serverMaxRetries int

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Update the client or server configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			scope := strings.ToLower(strings.TrimSpace(target))
			if scope == "" {
				scope = "client"
			}
			switch scope {
			case "client":
				return updateClientConfig(cmd, cmd.Flags(), clientOutputDir, clientReportDir, clientLoss, clientSeed, clientAutoRecover, clientLogLevel)
			case "server":
				return updateServerConfig(serverConfigPath, cmd.Flags(), serverPort, serverRootDir, serverSegmentSize, serverMaxRetries, clientLogLevel)
			default:
				return fmt.Errorf("--target must be either client or server")
			}
		},
	}

	cmd.Flags().StringVar(&target, "target", "client", "Which config to update: client or server")
	cmd.Flags().StringVar(&clientOutputDir, "output-dir", "", "Client mode: directory downloads land in")
	cmd.Flags().StringVar(&clientReportDir, "report-dir", "", "Client mode: directory transfer reports land in")
	cmd.Flags().IntVar(&clientLoss, "loss", 0, "Client mode: default simulated ACK loss percentage")
	cmd.Flags().Int64Var(&clientSeed, "seed", 0, "Client mode: default loss simulator seed")
	cmd.Flags().BoolVar(&clientAutoRecover, "auto-recover", false, "Client mode: recover missing segments without prompting")
	cmd.Flags().StringVar(&clientLogLevel, "log-level", "", "Log level (info, debug, ...)")

	cmd.Flags().IntVar(&serverPort, "listen-port", 0, "Server mode: UDP listen port")
	cmd.Flags().StringVar(&serverRootDir, "root-dir", "", "Server mode: directory files are served from")
	cmd.Flags().IntVar(&serverSegmentSize, "segment-size", 0, "Server mode: payload bytes per DATA frame")
	cmd.Flags().IntVar(&serverMaxRetries, "max-retries", 0, "Server mode: retransmissions before aborting a session")
	return cmd
}

func updateClientConfig(cmd *cobra.Command, flagSet *pflag.FlagSet, outputDir, reportDir string, loss int, seed int64, autoRecover bool, logLevel string) error {
	cfg := GetClientConfig(cmd)
	if cfg == nil {
		return fmt.Errorf("client config unavailable")
	}

	changed := false
	if flagSet.Changed("output-dir") {
		cfg.OutputDir = outputDir
		changed = true
	}
	if flagSet.Changed("report-dir") {
		cfg.ReportDir = reportDir
		changed = true
	}
	if flagSet.Changed("loss") {
		if loss < 0 || loss > 100 {
			return fmt.Errorf("loss percentage must be between 0 and 100")
		}
		cfg.LossPercent = loss
		changed = true
	}
	if flagSet.Changed("seed") {
		cfg.LossSeed = seed
		changed = true
	}
	if flagSet.Changed("auto-recover") {
		cfg.AutoRecover = autoRecover
		changed = true
	}
	if flagSet.Changed("log-level") {
		cfg.LogLevel = logLevel
		changed = true
	}
	if !changed {
		return fmt.Errorf("client config: provide at least one setting to change")
	}

	path := getClientConfigPath(cmd)
	if _, err := cfg.Save(path); err != nil {
		return fmt.Errorf("saving client config: %w", err)
	}
	internal.Info("client configuration updated", internal.Fields{
		internal.ConfigPath: path,
	})
	return nil
}

func updateServerConfig(cfgPathPtr *string, flagSet *pflag.FlagSet, port int, rootDir string, segmentSize, maxRetries int, logLevel string) error {
	path := strings.TrimSpace(*cfgPathPtr)
	if path == "" {
		path = defaultServerConfigPath()
	}

	if err := ensureServerConfigFile(path); err != nil {
		return err
	}

	cfg, err := internal.LoadServerConfig(path)
	if err != nil {
		return fmt.Errorf("load server config: %w", err)
	}

	if flagSet.Changed("listen-port") {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("server port must be between 1 and 65535")
		}
		cfg.Port = port
	}
	if flagSet.Changed("root-dir") {
		cfg.RootDir = rootDir
	}
	if flagSet.Changed("segment-size") {
		if segmentSize <= 0 || segmentSize > wire.MaxPayload {
			return fmt.Errorf("segment size must be between 1 and %d", wire.MaxPayload)
		}
		cfg.SegmentSize = segmentSize
	}
	if flagSet.Changed("max-retries") {
		if maxRetries <= 0 {
			return fmt.Errorf("max retries must be > 0")
		}
		cfg.MaxRetries = maxRetries
	}
	if flagSet.Changed("log-level") {
		cfg.LogLevel = logLevel
	}

	if _, err := cfg.Save(path); err != nil {
		return fmt.Errorf("saving server config: %w", err)
	}
	internal.Info("server configuration updated", internal.Fields{
		internal.ConfigPath: path,
	})
	return nil
}

func defaultServerConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "server_config.toml"
	}
	return filepath.Join(home, ".udpcopy", "server_config.toml")
}

func ensureServerConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat server config: %w", err)
	}

	defaultCfg, err := internal.LoadServerConfig("")
	if err != nil {
		return fmt.Errorf("load default server config: %w", err)
	}
	if _, err := defaultCfg.Save(path); err != nil {
		return fmt.Errorf("create server config: %w", err)
	}
	return nil
}
