package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"advisor-matching/internal/common/config"
	pairscore "advisor-matching/internal/workers/matching/calculate-match-score"
	recalc "advisor-matching/internal/workers/matching/recalculate-matches"
	"advisor-matching/pkg/registry"
)

var activitiesCmd = &cobra.Command{
	Use:   "activities",
	Short: "Write this service's Zeebe task types into an activity registry file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		path, _ := cmd.Flags().GetString("registry")

		cfg, err := config.Load(cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "using worker defaults: %v\n", err)
			cfg = nil
		}

		reg, err := registry.LoadRegistry(path)
		if err != nil {
			return err
		}
		now := time.Now()
		reg.Upsert(recalc.Activity(recalc.LoadConfig(cfg)), now)
		reg.Upsert(pairscore.Activity(pairscore.LoadConfig(cfg)), now)
		if err := reg.Save(path); err != nil {
			return err
		}
		fmt.Printf("%s: %d activities\n", path, len(reg.Activities))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(activitiesCmd)

	activitiesCmd.Flags().String("registry", "configs/activity-registry.json", "registry file to update")
}
