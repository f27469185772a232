package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var freezeCmd = &cobra.Command{
	Use:     "freeze",
	GroupID: GroupAdmin,
	Short:   "Inspect or toggle a project's write freeze",
}

var freezeNote string
var freezeConfirm bool

var freezeGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the current freeze state",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireProject(); err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		out, err := c.get(cmd.Context(), "/freeze", projectQuery(nil))
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(out)
			return nil
		}
		frozen, _ := out["is_frozen"].(bool)
		if frozen {
			fmt.Fprintf(stdout, "%s by %v at %v: %v\n", failStyle.Render("FROZEN"), out["frozen_by"], out["frozen_at"], out["note"])
		} else {
			fmt.Fprintln(stdout, okStyle.Render("not frozen"))
		}
		return nil
	},
}

func runFreezeToggle(cmd *cobra.Command, path, verb string) error {
	if err := requireProject(); err != nil {
		return err
	}
	c, err := newClient()
	if err != nil {
		return err
	}
	body := struct {
		Actor   string `json:"actor"`
		Note    string `json:"note"`
		DryRun  *bool  `json:"dry_run,omitempty"`
		Confirm bool   `json:"confirm"`
	}{Actor: actor, Note: freezeNote, Confirm: freezeConfirm}
	if freezeConfirm {
		dr := false
		body.DryRun = &dr
	}
	out, err := c.post(cmd.Context(), path, body)
	if err != nil {
		return err
	}
	if jsonOutput {
		printJSON(out)
		return nil
	}
	if dr, ok := out["dry_run"].(bool); ok && dr {
		fmt.Fprintln(stdout, renderOutcome(true, fmt.Sprintf("would %s", verb)))
		return nil
	}
	fmt.Fprintln(stdout, renderOutcome(false, verb))
	return nil
}

var freezeSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Freeze the project (dry-run unless --confirm)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFreezeToggle(cmd, "/freeze", "freeze")
	},
}

var freezeBreakCmd = &cobra.Command{
	Use:   "break",
	Short: "Break an active freeze (dry-run unless --confirm)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFreezeToggle(cmd, "/freeze/break", "break freeze")
	},
}

func init() {
	freezeCmd.AddCommand(freezeGetCmd, freezeSetCmd, freezeBreakCmd)
	for _, c := range []*cobra.Command{freezeSetCmd, freezeBreakCmd} {
		c.Flags().StringVar(&freezeNote, "note", "", "audit note recorded with the freeze change")
		c.Flags().BoolVar(&freezeConfirm, "confirm", false, "actually apply the change instead of a dry-run preview")
	}
}
