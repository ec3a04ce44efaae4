package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/caselight/caselight/internal/application/caseops"
	"github.com/caselight/caselight/internal/infrastructure/database/postgres"
	"github.com/caselight/caselight/internal/infrastructure/database/postgres/repositories"
	"github.com/caselight/caselight/pkg/types/common"
)

func newEvaluateCmd(opts *RootOptions) *cobra.Command {
	var atFlag string

	cmd := &cobra.Command{
		Use:   "evaluate <case-id>",
		Short: "Run one evaluation pass for a case and print the summary",
		Long: "Recomputes deadlines, reminders, escalations, risk score, health\n" +
			"alerts, and workflow transitions for one case, writing results to the\n" +
			"database. Events and caching are skipped; use the server or worker for\n" +
			"those.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := newOfflineService(cmd, opts)
			if err != nil {
				return err
			}
			defer cleanup()

			now := time.Time{}
			if atFlag != "" {
				now, err = time.Parse(time.RFC3339, atFlag)
				if err != nil {
					return fmt.Errorf("--at: %w", err)
				}
			}

			summary, err := svc.EvaluateCase(cmd.Context(), common.ID(args[0]), now)
			if err != nil {
				return err
			}
			return printJSON(cmd, summary)
		},
	}

	cmd.Flags().StringVar(&atFlag, "at", "", "evaluate as of this RFC3339 instant instead of now")
	return cmd
}

// newOfflineService wires a service against PostgreSQL only.  One-shot
// commands do not need Redis, Kafka, or metrics.
func newOfflineService(cmd *cobra.Command, opts *RootOptions) (*caseops.Service, func(), error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, nil, err
	}

	conn, err := postgres.NewConnection(cmd.Context(), cfg.Database, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: %w", err)
	}

	svc, err := caseops.NewService(caseops.Repositories{
		Cases:       repositories.NewCaseRepository(conn, logger),
		Events:      repositories.NewTaskEventRepository(conn, logger),
		Deadlines:   repositories.NewDeadlineRepository(conn, logger),
		Escalations: repositories.NewEscalationRepository(conn, logger),
		Snapshots:   repositories.NewRiskSnapshotRepository(conn, logger),
		Alerts:      repositories.NewHealthAlertRepository(conn, logger),
		Workflow:    repositories.NewWorkflowRepository(conn, logger),
	}, logger)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return svc, conn.Close, nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
