package cli

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/mateuskih/Trabalho-1-UDP/pkg/report"
)

func HistoryCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:          "history",
		Short:        "List past transfers recorded by this client",
		Aliases:      []string{"hist"},
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := GetClientConfig(cmd)
			if cfg == nil {
				return fmt.Errorf("client config not loaded")
			}
			h, err := report.OpenHistory(cfg.HistoryFile)
			if err != nil {
				return fmt.Errorf("open transfer history: %w", err)
			}
			entries := h.List()
			if len(entries) == 0 {
				pterm.Println("no transfers recorded yet")
				return nil
			}
			if limit > 0 && len(entries) > limit {
				entries = entries[len(entries)-limit:]
			}

			rows := pterm.TableData{{"Finished", "File", "Segments", "Lost", "Recovered", "Success", "Status"}}
			for _, e := range entries {
				status := "complete"
				if !e.Complete {
					status = "partial"
				}
				rows = append(rows, []string{
					e.FinishedAt.Local().Format(time.DateTime),
					e.File,
					fmt.Sprintf("%d", e.TotalSegments),
					fmt.Sprintf("%d", e.SegmentsLost),
					fmt.Sprintf("%d", e.SegmentsRecovered),
					fmt.Sprintf("%.1f%%", e.SuccessPercent),
					status,
				})
			}
			out, err := pterm.DefaultTable.WithHasHeader().WithData(rows).Srender()
			if err != nil {
				return err
			}
			pterm.Println(out)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Show only the most recent N transfers")
	return cmd
}
