package main

import (
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

var opsCmd = &cobra.Command{
	Use:     "ops",
	GroupID: GroupReadOnly,
	Short:   "Inspect the audit trail of version events",
}

var opsRecentLimit int

var opsRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Show the most recent audit events",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireProject(); err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		q := url.Values{}
		if opsRecentLimit > 0 {
			q.Set("limit", strconv.Itoa(opsRecentLimit))
		}
		out, err := c.get(cmd.Context(), "/ops/recent", projectQuery(q))
		if err != nil {
			return err
		}
		printJSON(out)
		return nil
	},
}

var (
	opsLogAction string
	opsLogSince  string
	opsLogUntil  string
	opsLogLimit  int
	opsLogOffset int
)

// opsLogCmd mirrors spec section 6's GET /ops/log: --since/--until are
// passed through verbatim as query parameters and resolved server-side
// by the same olebedev/when parser the HTTP handler uses, so "3 days
// ago" means the same thing whether it reaches the daemon from the CLI
// or a direct curl.
var opsLogCmd = &cobra.Command{
	Use:   "log",
	Short: `Query the audit log (--since/--until accept phrases like "3 days ago")`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireProject(); err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		q := url.Values{}
		if opsLogAction != "" {
			q.Set("action", opsLogAction)
		}
		if opsLogSince != "" {
			q.Set("since", opsLogSince)
		}
		if opsLogUntil != "" {
			q.Set("until", opsLogUntil)
		}
		if opsLogLimit > 0 {
			q.Set("limit", strconv.Itoa(opsLogLimit))
		}
		if opsLogOffset > 0 {
			q.Set("offset", strconv.Itoa(opsLogOffset))
		}
		out, err := c.get(cmd.Context(), "/ops/log", projectQuery(q))
		if err != nil {
			return err
		}
		printJSON(out)
		return nil
	},
}


func init() {
	opsRecentCmd.Flags().IntVar(&opsRecentLimit, "limit", 50, "max events to return")

	opsLogCmd.Flags().StringVar(&opsLogAction, "action", "", "filter by version action")
	opsLogCmd.Flags().StringVar(&opsLogSince, "since", "", `natural-language or RFC3339 lower bound, e.g. "3 days ago"`)
	opsLogCmd.Flags().StringVar(&opsLogUntil, "until", "", "natural-language or RFC3339 upper bound")
	opsLogCmd.Flags().IntVar(&opsLogLimit, "limit", 100, "max events to return")
	opsLogCmd.Flags().IntVar(&opsLogOffset, "offset", 0, "paging offset")

	opsCmd.AddCommand(opsRecentCmd, opsLogCmd)
}
