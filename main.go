/*
This is an example application that drives the frame pipeline with the
headless backend. It builds a procedural scene through the testbed
package and runs until interrupted.
*/
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/oxyengine/oxygen/engine"
	"github.com/oxyengine/oxygen/engine/config"
	"github.com/oxyengine/oxygen/engine/core"
	_ "github.com/oxyengine/oxygen/engine/renderer/headless"
	"github.com/oxyengine/oxygen/testbed"
)

func main() {
	cfg, err := config.Load("oxygen.toml")
	if err != nil {
		core.LogFatal(err.Error())
		os.Exit(1)
	}

	eng, err := engine.New(cfg)
	if err != nil {
		core.LogFatal(err.Error())
		os.Exit(1)
	}

	if err := eng.Initialize(); err != nil {
		core.LogFatal(err.Error())
		os.Exit(1)
	}

	game := testbed.NewTestGame(eng)
	if err := game.Setup(); err != nil {
		core.LogFatal(err.Error())
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := eng.Run(ctx); err != nil {
		core.LogError(err.Error())
		os.Exit(1)
	}
}
