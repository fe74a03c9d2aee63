package version

import (
	"runtime/debug"
	"strings"
)

// ModulePath is the import path of this module.
const ModulePath = "github.com/kbukum/nitai"

// Version is set at build time. When left as "dev" the version recorded
// in the build info is used instead.
var Version = "dev"

var readBuildInfo = debug.ReadBuildInfo

// String returns the release, without a leading "v".
func String() string {
	if Version != "" && Version != "dev" {
		return strings.TrimPrefix(Version, "v")
	}
	info, ok := readBuildInfo()
	if !ok {
		return "dev"
	}
	if v := moduleVersion(info); v != "" {
		return strings.TrimPrefix(v, "v")
	}
	return "dev"
}

// moduleVersion finds nitai among the dependencies, or as the main module
// when the binary is built from this repository.
func moduleVersion(info *debug.BuildInfo) string {
	for _, dep := range info.Deps {
		if dep.Path != ModulePath {
			continue
		}
		if dep.Replace != nil {
			dep = dep.Replace
		}
		return usable(dep.Version)
	}
	if info.Main.Path == ModulePath {
		return usable(info.Main.Version)
	}
	return ""
}

func usable(v string) string {
	if v == "" || v == "(devel)" {
		return ""
	}
	return v
}
