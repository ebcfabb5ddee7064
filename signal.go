package mgoose

import (
	"os"
	"os/signal"
	"syscall"
)

// installSignalStop arms SIGINT/SIGTERM to close stop, for Manager.Run's
// convenience loop (spec.md §4.1 `run`).
func installSignalStop(stop chan struct{}) chan os.Signal {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		if _, ok := <-sig; ok {
			close(stop)
		}
	}()
	return sig
}

// restoreSignalStop undoes installSignalStop's signal.Notify.
func restoreSignalStop(sig chan os.Signal) {
	signal.Stop(sig)
	close(sig)
}
