package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/mateuskih/Trabalho-1-UDP/cli/output"
	"github.com/mateuskih/Trabalho-1-UDP/internal"
	"github.com/mateuskih/Trabalho-1-UDP/pkg/client"
	"github.com/mateuskih/Trabalho-1-UDP/pkg/report"
)

type getOptions struct {
	outputPath  string
	lossPercent int
	lossSeed    int64
	recover     bool
	noRecover   bool
	timeout     time.Duration
}

func GetCommand() *cobra.Command {
	var opts getOptions
	cmd := &cobra.Command{
		Use:          "get <host:port/file>",
		Short:        "Download a file from a udpcopy server",
		Long:         "Download a file over UDP, acknowledging each segment and recovering lost ones after the stream ends.",
		Aliases:      []string{"g", "fetch"},
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := GetClientConfig(cmd)
			if cfg == nil {
				return fmt.Errorf("client config not loaded")
			}
			addr, name, err := internal.ParseTarget(args[0])
			if err != nil {
				return err
			}
			if opts.recover && opts.noRecover {
				return fmt.Errorf("--recover and --no-recover are mutually exclusive")
			}

			outPath := opts.outputPath
			if outPath == "" {
				outPath = filepath.Join(cfg.OutputDir, filepath.Base(name))
			}

			loss := cfg.LossPercent
			if cmd.Flags().Changed("loss") {
				loss = opts.lossPercent
			}
			seed := cfg.LossSeed
			if cmd.Flags().Changed("seed") {
				seed = opts.lossSeed
			}

			requestTimeout := time.Duration(cfg.RequestTimeoutMs) * time.Millisecond
			idleTimeout := time.Duration(cfg.IdleTimeoutMs) * time.Millisecond
			if opts.timeout > 0 {
				requestTimeout = opts.timeout
				idleTimeout = opts.timeout
			}

			printer := output.NewPrinter()
			bar := output.NewSegmentBar(name)
			tl := report.NewTransferLog(name, cfg.ReportDir)

			session := client.New(client.Config{
				ServerAddr:       addr,
				FileName:         name,
				OutputPath:       outPath,
				RequestTimeout:   requestTimeout,
				IdleTimeout:      idleTimeout,
				RecoverAttempts:  cfg.RecoverAttempts,
				RecoverTimeout:   time.Duration(cfg.RecoverTimeoutMs) * time.Millisecond,
				SocketBufferSize: cfg.SocketBufferSize,
				Drop:             client.NewLossSimulator(loss, seed),
				Reporter:         tl,
				Progress:         bar.Tick,
				Recover: func(missing []uint32) bool {
					bar.Stop()
					return decideRecovery(cfg, opts, missing)
				},
			})

			res, err := session.Fetch(cmd.Context())
			bar.Stop()
			if err != nil {
				return err
			}

			if res.Partial {
				printer.Warn("transfer incomplete, wrote partial artifact", map[string]any{
					"path":    res.Path,
					"missing": len(res.Lost),
				})
			} else {
				printer.Success("transfer complete", map[string]any{
					"path":  res.Path,
					"bytes": internal.HumanizeSize(uint64(res.Bytes)),
				})
			}

			printer.RenderSummary(tl.Summary())
			printer.Info("reports written", map[string]any{
				"json": tl.JSONPath(),
				"text": tl.TextPath(),
			})

			if err := appendHistory(cfg.HistoryFile, tl.Summary()); err != nil {
				printer.Warn("failed to record transfer history", map[string]any{
					"error": err.Error(),
				})
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.outputPath, "output", "o", "", "Destination path for the downloaded file")
	cmd.Flags().IntVar(&opts.lossPercent, "loss", 0, "Simulated ACK loss percentage (0-100)")
	cmd.Flags().Int64Var(&opts.lossSeed, "seed", 0, "Seed for the loss simulator, 0 uses the clock")
	cmd.Flags().BoolVar(&opts.recover, "recover", false, "Recover missing segments without prompting")
	cmd.Flags().BoolVar(&opts.noRecover, "no-recover", false, "Skip recovery and keep the partial artifact")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "Override both request and idle timeouts")
	return cmd
}

func decideRecovery(cfg *internal.ClientConfig, opts getOptions, missing []uint32) bool {
	switch {
	case opts.recover:
		return true
	case opts.noRecover:
		return false
	case cfg.AutoRecover:
		return true
	}
	if !stdinIsTerminal() {
		internal.Warn("segments missing and no terminal to ask on, skipping recovery", internal.Fields{
			internal.FieldTotal: len(missing),
		})
		return false
	}
	ok, err := pterm.DefaultInteractiveConfirm.
		WithDefaultValue(true).
		Show(fmt.Sprintf("%d segment(s) missing, request them again?", len(missing)))
	if err != nil {
		return false
	}
	return ok
}

func stdinIsTerminal() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

func appendHistory(path string, s *report.Summary) error {
	if path == "" || s == nil {
		return errors.New("no history file configured")
	}
	h, err := report.OpenHistory(path)
	if err != nil {
		return err
	}
	return h.Append(report.NewHistoryEntry(s))
}
