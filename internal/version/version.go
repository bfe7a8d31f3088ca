// Package version carries build metadata stamped in by the linker.
package version

import (
	"fmt"
	"runtime"
)

// Set via ldflags at build time:
//
//	go build -ldflags "-X github.com/soyeahso/wadesk/internal/version.Version=1.0.0
//	  -X github.com/soyeahso/wadesk/internal/version.Commit=abc123
//	  -X github.com/soyeahso/wadesk/internal/version.Date=2026-01-01"
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Name is the product name used in banners and request headers.
const Name = "wadesk"

// Info returns a formatted version string.
func Info() string {
	return fmt.Sprintf("%s %s (commit: %s, built: %s, %s/%s)",
		Name, Version, short(Commit), Date, runtime.GOOS, runtime.GOARCH)
}

// UserAgent is the User-Agent sent on outbound HTTP requests.
func UserAgent() string {
	if Commit == "unknown" {
		return Name + "/" + Version
	}
	return fmt.Sprintf("%s/%s (%s)", Name, Version, short(Commit))
}

func short(s string) string {
	if len(s) > 7 {
		return s[:7]
	}
	return s
}
