package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: GroupAdmin,
	Short:   "Drain unsynced ledger rows into the graph and vector stores",
}

func syncRunner(path, label string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := requireProject(); err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		out, err := c.post(cmd.Context(), path, map[string]any{})
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(out)
			return nil
		}
		fmt.Fprintf(stdout, "%s  scanned=%v synced=%v remaining=%v\n",
			boldStyle.Render(label), out["scanned"], out["synced"], out["remaining"])
		return nil
	}
}

var syncFragmentsCmd = &cobra.Command{
	Use:   "fragments",
	Short: "Sync pending fragment projections",
	RunE:  syncRunner("/sync/fragments", "sync fragments"),
}

var syncAxialCmd = &cobra.Command{
	Use:   "axial",
	Short: "Sync validated axial relations",
	RunE:  syncRunner("/sync/axial", "sync axial"),
}

var syncPredictionsCmd = &cobra.Command{
	Use:   "predictions",
	Short: "Sync validated link predictions",
	RunE:  syncRunner("/sync/predictions", "sync predictions"),
}

var syncVectorsCmd = &cobra.Command{
	Use:   "vectors",
	Short: "Sync pending fragment embeddings into the vector store",
	RunE:  syncRunner("/sync/vectors", "sync vectors"),
}

func init() {
	syncCmd.AddCommand(syncFragmentsCmd, syncAxialCmd, syncPredictionsCmd, syncVectorsCmd)
}
