package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var readinessCmd = &cobra.Command{
	Use:     "readiness",
	GroupID: GroupReadOnly,
	Short:   "Show the axial readiness gate and its blocking reasons",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireProject(); err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		out, err := c.get(cmd.Context(), "/readiness", projectQuery(nil))
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(out)
			return nil
		}
		ready, _ := out["axial_ready"].(bool)
		degraded, _ := out["degraded"].(bool)
		status := okStyle.Render("ready")
		if !ready {
			status = failStyle.Render("not ready")
		}
		fmt.Fprintf(stdout, "%s  axial_ready=%s\n", boldStyle.Render("readiness"), status)
		if degraded {
			fmt.Fprintln(stdout, warnStyle.Render("  (degraded: readiness store unreachable, showing best-known state)"))
		}
		fmt.Fprintf(stdout, "  missing_code_id:           %v\n", out["missing_code_id"])
		fmt.Fprintf(stdout, "  missing_canonical_code_id: %v\n", out["missing_canonical_code_id"])
		fmt.Fprintf(stdout, "  divergences_text_vs_id:    %v\n", out["divergences_text_vs_id"])
		fmt.Fprintf(stdout, "  cycles_non_trivial:        %v\n", out["cycles_non_trivial"])
		if reasons, ok := out["blocking_reasons"].([]any); ok && len(reasons) > 0 {
			fmt.Fprintln(stdout, mutedStyle.Render("  blocking reasons:"))
			for _, r := range reasons {
				fmt.Fprintf(stdout, "    - %v\n", r)
			}
		}
		return nil
	},
}
