package main

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// cliLocalOverride is the CLI's own developer-local TOML escape hatch,
// the same idea as internal/config.LocalOverride but scoped to the
// flags a developer re-types on every invocation (server/project/actor)
// rather than the ledger DSN the daemon cares about.
type cliLocalOverride struct {
	Server  string `toml:"server"`
	Project string `toml:"project"`
	Actor   string `toml:"actor"`
}

// applyLocalOverride reads localOverride, if present, and fills in any
// persistent flag still at its zero/default value. Flags explicitly
// passed on the command line always win: this only runs during init(),
// before cobra has parsed argv, so it seeds the flag defaults rather
// than overwriting anything the user typed.
func applyLocalOverride() {
	if localOverride == "" {
		return
	}
	if _, err := os.Stat(localOverride); err != nil {
		return
	}
	var lo cliLocalOverride
	if _, err := toml.DecodeFile(localOverride, &lo); err != nil {
		fmt.Fprintf(os.Stderr, "onto: ignoring malformed --local-override %s: %v\n", localOverride, err)
		return
	}
	if lo.Server != "" {
		serverAddr = lo.Server
	}
	if lo.Project != "" && projectID == "" {
		projectID = lo.Project
	}
	if lo.Actor != "" && actor == os.Getenv("USER") {
		actor = lo.Actor
	}
}
