//go:build windows

package main

import (
	"os"
	"os/signal"

	"golang.org/x/sys/windows"
)

func notifySignals() (chan os.Signal, func()) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, windows.SIGTERM)
	return sigs, func() { signal.Stop(sigs) }
}
