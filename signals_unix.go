//go:build unix

package main

import (
	"os"
	"os/signal"
	"syscall"
)

// notifySignals maps SIGINT/SIGTERM to shutdown, SIGHUP to a config reload
// and SIGUSR1 to toggling the tap.
func notifySignals(out chan<- controlSignal) (stop func()) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGUSR1)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case s := <-c:
				next := sigShutdown
				switch s {
				case syscall.SIGHUP:
					next = sigReload
				case syscall.SIGUSR1:
					next = sigToggle
				}
				select {
				case out <- next:
				case <-done:
					return
				}
			}
		}
	}()
	return func() {
		signal.Stop(c)
		close(done)
	}
}
