package main

import (
	"fmt"
	"runtime/debug"
)

// Set with -ldflags "-X main.version=... -X main.commit=... -X main.date=...".
var (
	version = "dev"
	commit  = "HEAD"
	date    = "now"
)

// versionString reports the linked build metadata. Binaries built with
// `go install module@version` carry no ldflags and read the module version
// and VCS stamp from the embedded build info instead.
func versionString() string {
	v, rev, at := version, commit, date
	if info, ok := debug.ReadBuildInfo(); ok && v == "dev" {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			v = info.Main.Version
		}
		vcs := map[string]string{}
		for _, s := range info.Settings {
			vcs[s.Key] = s.Value
		}
		if r := vcs["vcs.revision"]; r != "" {
			rev = r
		}
		if t := vcs["vcs.time"]; t != "" {
			at = t
		}
	}
	if len(rev) > 7 {
		rev = rev[:7]
	}
	return fmt.Sprintf("%s (%s) %s", v, rev, at)
}
