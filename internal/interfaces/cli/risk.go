package cli

import (
	"github.com/spf13/cobra"

	"github.com/caselight/caselight/pkg/types/common"
)

func newRiskCmd(opts *RootOptions) *cobra.Command {
	var history int

	cmd := &cobra.Command{
		Use:   "risk <case-id>",
		Short: "Print the latest risk snapshot for a case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := newOfflineService(cmd, opts)
			if err != nil {
				return err
			}
			defer cleanup()

			caseID := common.ID(args[0])
			if history > 0 {
				snapshots, err := svc.GetRiskHistory(cmd.Context(), caseID, history)
				if err != nil {
					return err
				}
				return printJSON(cmd, snapshots)
			}

			snapshot, err := svc.GetRiskReport(cmd.Context(), caseID)
			if err != nil {
				return err
			}
			return printJSON(cmd, snapshot)
		},
	}

	cmd.Flags().IntVar(&history, "history", 0, "print the last N daily snapshots instead of the latest")
	return cmd
}
