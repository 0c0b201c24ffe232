package main

import (
	"os"

	"github.com/root4loot/goutils/log"
	"github.com/root4loot/poster/pkg/poster"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	poster.Init()

	if err := newRootCmd().Execute(); err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}
