package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var candidatesCmd = &cobra.Command{
	Use:     "candidates",
	GroupID: GroupCandidates,
	Short:   "Check, submit, validate, reject, and merge code candidates",
}

var checkBatchLabels string

var candidatesCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check a comma-separated batch of labels against the catalog (pure, no writes)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireProject(); err != nil {
			return err
		}
		if checkBatchLabels == "" {
			return fmt.Errorf("--labels is required")
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		labels := splitCSV(checkBatchLabels)
		out, err := c.post(cmd.Context(), "/candidates/check-batch", map[string]any{"labels": labels})
		if err != nil {
			return err
		}
		printJSON(out)
		return nil
	},
}

var (
	submitCodigo     string
	submitFragmentID string
	submitSource     string
	submitConfidence float64
	submitMemo       string
)

var candidatesSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a single candidate code",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireProject(); err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		body := map[string]any{
			"codigo": submitCodigo, "source": submitSource,
			"confidence": submitConfidence, "memo": submitMemo,
		}
		if submitFragmentID != "" {
			body["fragment_id"] = submitFragmentID
		}
		out, err := c.post(cmd.Context(), "/candidates", body)
		if err != nil {
			return err
		}
		printJSON(out)
		return nil
	},
}

func transitionCmd(use, short, target string) *cobra.Command {
	var id int64
	var transMemo string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireProject(); err != nil {
				return err
			}
			c, err := newClient()
			if err != nil {
				return err
			}
			body := map[string]any{"actor": actor}
			if transMemo != "" {
				body["memo"] = transMemo
			}
			out, err := c.put(cmd.Context(), fmt.Sprintf("/candidates/%d/%s", id, target), body)
			if err != nil {
				return err
			}
			printJSON(out)
			return nil
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "candidate id")
	cmd.Flags().StringVar(&transMemo, "memo", "", "audit memo")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

var (
	mergeSourceIDs string
	mergeTarget    string
	mergeMemo      string
	mergeConfirm   bool
	mergeIdemKey   string
)

var candidatesMergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge candidate source ids into a target catalog label (dry-run unless --confirm)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireProject(); err != nil {
			return err
		}
		ids, err := parseInt64CSV(mergeSourceIDs)
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		mf := newMutationFields(mergeConfirm, mergeIdemKey)
		body := map[string]any{
			"source_ids": ids, "target_codigo": mergeTarget, "memo": mergeMemo,
			"actor": mf.Actor, "confirm": mf.Confirm,
		}
		if mf.DryRun != nil {
			body["dry_run"] = *mf.DryRun
		}
		if mf.IdempotencyKey != "" {
			body["idempotency_key"] = mf.IdempotencyKey
		}
		out, err := c.post(cmd.Context(), "/candidates/merge", body)
		if err != nil {
			return err
		}
		printJSON(out)
		return nil
	},
}

var autoMergePairs string

var candidatesAutoMergeCmd = &cobra.Command{
	Use:   "auto-merge",
	Short: "Merge codigo pairs (source:target, comma-separated) per the canonical-code chain (dry-run unless --confirm)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireProject(); err != nil {
			return err
		}
		pairs, err := parsePairsCSV(autoMergePairs)
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		mf := newMutationFields(mergeConfirm, mergeIdemKey)
		body := map[string]any{
			"pairs": pairs, "memo": mergeMemo,
			"actor": mf.Actor, "confirm": mf.Confirm,
		}
		if mf.DryRun != nil {
			body["dry_run"] = *mf.DryRun
		}
		if mf.IdempotencyKey != "" {
			body["idempotency_key"] = mf.IdempotencyKey
		}
		out, err := c.post(cmd.Context(), "/candidates/auto-merge", body)
		if err != nil {
			return err
		}
		printJSON(out)
		return nil
	},
}

var (
	proposeFragmentID string
	proposeText       string
)

var candidatesProposeCmd = &cobra.Command{
	Use:   "propose",
	Short: "Ask the semantic runner to propose candidates for a fragment (requires ontod to have ANTHROPIC_API_KEY set)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireProject(); err != nil {
			return err
		}
		if proposeFragmentID == "" || proposeText == "" {
			return fmt.Errorf("--fragment-id and --text are required")
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		out, err := c.post(cmd.Context(), "/candidates/propose", map[string]any{
			"fragment_id": proposeFragmentID, "text": proposeText,
		})
		if err != nil {
			return err
		}
		printJSON(out)
		return nil
	},
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseInt64CSV(s string) ([]int64, error) {
	parts := splitCSV(s)
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid source id %q: %w", p, err)
		}
		out = append(out, n)
	}
	return out, nil
}

func parsePairsCSV(s string) ([]map[string]string, error) {
	parts := splitCSV(s)
	out := make([]map[string]string, 0, len(parts))
	for _, p := range parts {
		sides := strings.SplitN(p, ":", 2)
		if len(sides) != 2 {
			return nil, fmt.Errorf("invalid pair %q, expected source:target", p)
		}
		out = append(out, map[string]string{
			"source_codigo": strings.TrimSpace(sides[0]),
			"target_codigo": strings.TrimSpace(sides[1]),
		})
	}
	return out, nil
}

func init() {
	candidatesCheckCmd.Flags().StringVar(&checkBatchLabels, "labels", "", "comma-separated candidate labels")

	candidatesSubmitCmd.Flags().StringVar(&submitCodigo, "codigo", "", "candidate label")
	candidatesSubmitCmd.Flags().StringVar(&submitFragmentID, "fragment-id", "", "source fragment id")
	candidatesSubmitCmd.Flags().StringVar(&submitSource, "source", "manual", "candidate source (manual|llm|discovery|semantic|legacy)")
	candidatesSubmitCmd.Flags().Float64Var(&submitConfidence, "confidence", 1.0, "producer confidence, 0..1")
	candidatesSubmitCmd.Flags().StringVar(&submitMemo, "memo", "", "audit memo")
	_ = candidatesSubmitCmd.MarkFlagRequired("codigo")

	validateCmd := transitionCmd("validate", "Validate a candidate", "validate")
	rejectCmd := transitionCmd("reject", "Reject a candidate", "reject")

	for _, c := range []*cobra.Command{candidatesMergeCmd, candidatesAutoMergeCmd} {
		c.Flags().StringVar(&mergeMemo, "memo", "", "audit memo")
		c.Flags().BoolVar(&mergeConfirm, "confirm", false, "actually apply the merge instead of a dry-run preview")
		c.Flags().StringVar(&mergeIdemKey, "idempotency-key", "", "idempotency key (generated if --confirm and omitted)")
	}
	candidatesMergeCmd.Flags().StringVar(&mergeSourceIDs, "source", "", "comma-separated source candidate ids")
	candidatesMergeCmd.Flags().StringVar(&mergeTarget, "target", "", "target catalog codigo")
	candidatesAutoMergeCmd.Flags().StringVar(&autoMergePairs, "pairs", "", "comma-separated source:target codigo pairs")

	candidatesProposeCmd.Flags().StringVar(&proposeFragmentID, "fragment-id", "", "fragment id to propose codes for")
	candidatesProposeCmd.Flags().StringVar(&proposeText, "text", "", "fragment text")

	candidatesCmd.AddCommand(candidatesCheckCmd, candidatesSubmitCmd, validateCmd, rejectCmd, candidatesMergeCmd, candidatesAutoMergeCmd, candidatesProposeCmd)
}
