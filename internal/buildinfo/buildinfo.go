// Package buildinfo exposes version metadata stamped at link time, e.g.
// -ldflags "-X morapack/internal/buildinfo.Version=v1.2.0".
package buildinfo

import "runtime/debug"

var (
	Version = "dev"
	Commit  = ""
	BuiltAt = ""
)

// Info returns the stamped fields, falling back to the VCS revision and Go
// version recorded by the toolchain.
func Info() map[string]string {
	out := map[string]string{
		"version": Version,
		"commit":  Commit,
		"builtAt": BuiltAt,
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return out
	}
	out["go"] = bi.GoVersion
	for _, st := range bi.Settings {
		switch st.Key {
		case "vcs.revision":
			if out["commit"] == "" {
				out["commit"] = st.Value
			}
		case "vcs.time":
			if out["builtAt"] == "" {
				out["builtAt"] = st.Value
			}
		}
	}
	return out
}
