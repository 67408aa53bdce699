package main

import (
	"runtime/debug"

	"github.com/marcus/nhatky/cmd"
)

// Version is injected at build time with -ldflags "-X main.Version=v1.2.3".
var Version = "dev"

func main() {
	cmd.SetVersion(resolveVersion(Version, debug.ReadBuildInfo))
	cmd.Execute()
}

// resolveVersion prefers an injected version, then the module version
// recorded by `go install module@version`, then devel+<rev>[+dirty] from the
// VCS stamps.
func resolveVersion(injected string, buildInfo func() (*debug.BuildInfo, bool)) string {
	if injected != "" && injected != "dev" {
		return injected
	}
	info, ok := buildInfo()
	if !ok || info == nil {
		return injected
	}
	if v := info.Main.Version; v != "" && v != "(devel)" {
		return v
	}

	vcs := make(map[string]string, len(info.Settings))
	for _, s := range info.Settings {
		vcs[s.Key] = s.Value
	}
	rev := vcs["vcs.revision"]
	if rev == "" {
		return injected
	}
	v := "devel+" + rev[:min(len(rev), 12)]
	if vcs["vcs.modified"] == "true" {
		v += "+dirty"
	}
	return v
}
