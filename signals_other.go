//go:build !unix

package main

import (
	"os"
	"os/signal"
)

func notifySignals(out chan<- controlSignal) (stop func()) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	done := make(chan struct{})
	go func() {
		select {
		case <-done:
		case <-c:
			out <- sigShutdown
		}
	}()
	return func() {
		signal.Stop(c)
		close(done)
	}
}
