// Package version provides the netbox-secrets version strings.
package version

import (
	_ "embed"
	"runtime"
	"strings"
)

// buildVersion can be overridden at compile time:
//
//	go build -ldflags "-X github.com/buildkite/netbox-secrets/version.buildVersion=abc" .
//
// Release builds always set it.

//go:embed VERSION
var baseVersion string
var buildVersion string

func Version() string {
	return strings.TrimSpace(baseVersion)
}

func BuildVersion() string {
	if buildVersion == "" {
		return "x"
	}
	return buildVersion
}

// FullVersion is Version with the build version as semver metadata.
func FullVersion() string {
	return Version() + "+" + BuildVersion()
}

func UserAgent() string {
	return "netbox-secrets/" + Version() + "." + BuildVersion() + " (" + runtime.GOOS + "; " + runtime.GOARCH + ")"
}
