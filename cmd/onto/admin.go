package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// adminCmd groups the maintenance engine's destructive operations the
// way the teacher's cmd/bd/admin.go groups cleanup/compact/reset under
// "advanced" — these are the commands an operator reaches for only
// when readiness is blocked, not everyday workflow.
var adminCmd = &cobra.Command{
	Use:     "admin",
	GroupID: GroupAdmin,
	Short:   "Backfill and repair maintenance operations",
}

var (
	adminConfirm bool
	adminIdemKey string
)

func maintenanceRunner(path, label string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := requireProject(); err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		mf := newMutationFields(adminConfirm, adminIdemKey)
		body := map[string]any{"actor": mf.Actor, "confirm": mf.Confirm}
		if mf.DryRun != nil {
			body["dry_run"] = *mf.DryRun
		}
		if mf.IdempotencyKey != "" {
			body["idempotency_key"] = mf.IdempotencyKey
		}
		out, err := c.post(cmd.Context(), path, body)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(out)
			return nil
		}
		fmt.Fprintln(stdout, renderOutcome(!adminConfirm, label))
		printJSON(out["result"])
		return nil
	}
}

var adminBackfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Resolve assignments missing a code_id by label lookup (dry-run unless --confirm)",
	RunE:  maintenanceRunner("/admin/backfill", "backfill"),
}

var adminRepairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Clear all four readiness counters: backfill, fix divergences, revert orphaned merges, break cycles (dry-run unless --confirm)",
	RunE:  maintenanceRunner("/admin/repair", "repair"),
}

func init() {
	for _, c := range []*cobra.Command{adminBackfillCmd, adminRepairCmd} {
		c.Flags().BoolVar(&adminConfirm, "confirm", false, "actually apply the operation instead of a dry-run preview")
		c.Flags().StringVar(&adminIdemKey, "idempotency-key", "", "idempotency key (generated if --confirm and omitted)")
	}
	adminCmd.AddCommand(adminBackfillCmd, adminRepairCmd)
}
