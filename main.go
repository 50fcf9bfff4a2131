package main

import (
	"os"
	"time"

	"github.com/tphakala/pneumodetect/cmd"
	"github.com/tphakala/pneumodetect/internal/buildinfo"
	"github.com/tphakala/pneumodetect/internal/errors"
	"github.com/tphakala/pneumodetect/internal/logger"
)

// Set at build time with -ldflags "-X main.version=... -X main.buildDate=..."
var (
	version   string
	buildDate string
)

func main() {
	info := &buildinfo.Context{Version: version, BuildDate: buildDate}

	err := cmd.RootCommand(info).Execute()

	errors.FlushSentry(2 * time.Second)
	_ = logger.Global().Close()

	if err != nil {
		os.Exit(1)
	}
}
