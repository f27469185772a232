package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var axialCmd = &cobra.Command{
	Use:     "axial",
	GroupID: GroupCandidates,
	Short:   "Create axial relations (refused with not_ready when the gate is closed)",
}

var (
	axialCategoria string
	axialCodigo    string
	axialRelation  string
	axialMemo      string
	axialEvidence  string
)

var axialCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a category-to-code axial relation",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireProject(); err != nil {
			return err
		}
		if len(splitCSV(axialEvidence)) < 2 {
			return fmt.Errorf("--evidence needs at least two comma-separated fragment ids")
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		body := map[string]any{
			"categoria": axialCategoria, "codigo": axialCodigo, "relation": axialRelation,
			"memo": axialMemo, "evidence": splitCSV(axialEvidence), "actor": actor,
		}
		out, err := c.post(cmd.Context(), "/axial/relations", body)
		if err != nil {
			return err
		}
		printJSON(out)
		return nil
	},
}

func init() {
	axialCreateCmd.Flags().StringVar(&axialCategoria, "categoria", "", "axial category label")
	axialCreateCmd.Flags().StringVar(&axialCodigo, "codigo", "", "catalog code label")
	axialCreateCmd.Flags().StringVar(&axialRelation, "relation", "", "relation kind (cause|condition|consequence|part_of)")
	axialCreateCmd.Flags().StringVar(&axialMemo, "memo", "", "analyst memo")
	axialCreateCmd.Flags().StringVar(&axialEvidence, "evidence", "", "comma-separated fragment ids, at least two")
	_ = axialCreateCmd.MarkFlagRequired("categoria")
	_ = axialCreateCmd.MarkFlagRequired("codigo")
	_ = axialCreateCmd.MarkFlagRequired("relation")

	axialCmd.AddCommand(axialCreateCmd)
}
