package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-access-client/app"
	"github.com/jrsteele09/go-access-client/internal/config"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s%s%s\n", Red, err, ResetColor)
		os.Exit(1)
	}
}

func run(args []string) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.Load(config.ConfigFile())
	if err != nil {
		return err
	}
	config.ConfigureLogging(c, os.Stderr)

	cmd, err := parseCommand(args)
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := app.New(ctx, c)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Err(err).Msg("close failed")
		}
	}()

	if err := a.Start(ctx); err != nil {
		return err
	}
	if cmd.name == "watch" {
		displayAppname(c.GetAppName())
		return watch(a, c.GetMetricsAddr())
	}
	return cmd.exec(ctx, a, os.Stdout)
}

// watch polls server status and serves /status and /metrics until interrupted.
func watch(a *app.App, addr string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Watch(ctx)

	var server *http.Server
	if addr != "" {
		server = &http.Server{Addr: addr, Handler: a.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go listenAndServe(server)
	}

	updates, unsubscribe := a.Servers.Subscribe()
	defer unsubscribe()
	go printServerUpdates(os.Stdout, updates)

	waitForStopSignal()
	cancel()
	if server != nil {
		return shutdown(server)
	}
	return nil
}

func listenAndServe(server *http.Server) {
	log.Info().Str("addr", server.Addr).Msg("status server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Err(err).Msg("status server failed")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
