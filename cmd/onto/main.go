// Command onto is the CLI mirror of C7's Admin Operations API: every
// admin HTTP operation from spec section 6 has a verb here with the
// identical dry-run/confirm/idempotency-key discipline, mirroring how
// the teacher's cmd/bd exposes a cobra command tree in front of its
// daemon RPC surface (cmd/bd/repair.go, cmd/bd/admin.go). Unlike the
// teacher, which talks to a Unix-socket RPC daemon, onto talks to
// ontod's plain HTTP surface — the identity core has no embedded
// single-writer mode to fall back to.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Command groups, mirroring the teacher's GroupID convention
// (cmd/bd/admin.go groups cleanup/compact/reset under "advanced").
const (
	GroupReadOnly   = "read"
	GroupCandidates = "candidates"
	GroupAdmin      = "admin"
)

var (
	serverAddr    string
	projectID     string
	actor         string
	sessionID     string
	jsonOutput    bool
	localOverride string

	stdout = os.Stdout
)

var rootCmd = &cobra.Command{
	Use:           "onto",
	Short:         "CLI mirror of the identity core's Admin Operations API",
	SilenceUsage:  true,
	SilenceErrors: true,
	Long: `onto is the operator CLI for the qualitative-coding identity core.

Every mutating command defaults to dry-run, exactly like the HTTP surface
it mirrors: pass --confirm (and a fresh session id is generated for you)
to actually execute. Idempotency keys travel in the request body's
idempotency_key field (--idempotency-key, generated when --confirm is
set and no key is given); the server reads no X-Idempotency-Key header.

Examples:
  onto readiness --project p1
  onto freeze set --project p1 --actor alice --confirm
  onto candidates merge --project p1 --source 10,11 --target escasez_agua --confirm
  onto sync fragments --project p1
  onto ops log --project p1 --since "3 days ago"`,
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: GroupReadOnly, Title: "Read-only:"},
		&cobra.Group{ID: GroupCandidates, Title: "Candidate lifecycle:"},
		&cobra.Group{ID: GroupAdmin, Title: "Admin maintenance:"},
	)

	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", envOr("ONTO_SERVER", "http://localhost:8080"), "ontod base URL")
	rootCmd.PersistentFlags().StringVar(&projectID, "project", os.Getenv("ONTO_PROJECT"), "project id (required)")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", envOr("ONTO_ACTOR", os.Getenv("USER")), "actor name recorded on mutating operations")
	rootCmd.PersistentFlags().StringVar(&sessionID, "session-id", "", "X-Session-ID override (generated if empty)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit raw JSON instead of styled output")
	rootCmd.PersistentFlags().StringVar(&localOverride, "local-override", envOr("ONTO_LOCAL_OVERRIDE", ".onto.local.toml"), "optional developer-local TOML override (default project/actor/server)")

	applyLocalOverride()

	rootCmd.AddCommand(readinessCmd)
	rootCmd.AddCommand(freezeCmd)
	rootCmd.AddCommand(candidatesCmd)
	rootCmd.AddCommand(axialCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(opsCmd)
	rootCmd.AddCommand(adminCmd)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func requireProject() error {
	if projectID == "" {
		return fmt.Errorf("--project is required (or set ONTO_PROJECT)")
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, failStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}
