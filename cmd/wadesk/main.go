package main

import (
	"fmt"
	"os"

	"github.com/soyeahso/wadesk/internal/cli"
	"github.com/tillberg/autorestart"
)

func main() {
	// Re-exec on binary rebuilds during development.
	if os.Getenv("WADESK_DEV_RESTART") != "" {
		go autorestart.RestartOnChange()
	}

	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
