package engine

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/retina/engine/core"
)

// RunApplication drives a game through the whole engine lifecycle and stops
// it cleanly on SIGINT, SIGTERM or SIGQUIT.
func RunApplication(g *Game) error {
	e, err := New(g)
	if err != nil {
		return err
	}
	if err := e.Initialize(); err != nil {
		return errors.Join(err, e.Shutdown())
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer signal.Stop(sigCh)

	go func() {
		if _, ok := <-sigCh; ok {
			core.LogInfo("signal received, stopping")
			e.Stop()
		}
	}()

	runErr := e.Run()
	return errors.Join(runErr, e.Shutdown())
}
