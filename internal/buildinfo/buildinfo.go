package buildinfo

import "runtime/debug"

var (
	Version = "dev"
	Commit  = ""
	BuiltAt = ""
)

// Info reports the linker-set build fields. The commit falls back to the VCS
// revision stamped by the Go toolchain.
func Info() map[string]string {
	out := map[string]string{
		"version": Version,
		"commit":  Commit,
		"builtAt": BuiltAt,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		out["go"] = bi.GoVersion
		if out["commit"] == "" {
			for _, s := range bi.Settings {
				if s.Key == "vcs.revision" {
					out["commit"] = s.Value
				}
			}
		}
	}
	return out
}
