package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"advisor-matching/internal/matching/orchestrator"
	"advisor-matching/internal/models"
)

var recalculateCmd = &cobra.Command{
	Use:   "recalculate",
	Short: "Run one recalculation job and wait for it to finish",
	Long: `Without flags every founder is recomputed. --founder recomputes one
founder's ranked list, --advisor recomputes the pairs that include the advisor.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		founder, _ := cmd.Flags().GetString("founder")
		advisor, _ := cmd.Flags().GetString("advisor")
		if founder != "" && advisor != "" {
			return fmt.Errorf("--founder and --advisor are mutually exclusive")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return recalculate(ctx, founder, advisor)
	},
}

func init() {
	rootCmd.AddCommand(recalculateCmd)

	recalculateCmd.Flags().String("founder", "", "recompute one founder")
	recalculateCmd.Flags().String("advisor", "", "recompute the pairs of one advisor")
}

func recalculate(ctx context.Context, founder, advisor string) error {
	s, err := newServices(ctx)
	if err != nil {
		return err
	}
	defer s.close(context.Background())

	var handle *orchestrator.Handle
	switch {
	case founder != "":
		handle, err = s.orchestrator.StartFounderRecalculation(founder)
	case advisor != "":
		handle, err = s.orchestrator.StartAdvisorRecalculation(advisor)
	default:
		handle, err = s.orchestrator.StartFullRecalculation()
	}
	if err != nil {
		return err
	}

	job, err := handle.Wait(ctx)
	if out, mErr := json.MarshalIndent(job, "", "  "); mErr == nil {
		fmt.Println(string(out))
	}
	if err != nil {
		return err
	}
	if job.Status == models.JobFailed {
		return fmt.Errorf("job %s failed: %s", job.ID, job.Error)
	}
	return nil
}
