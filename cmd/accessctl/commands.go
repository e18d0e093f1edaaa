package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jrsteele09/go-access-client/app"
	"github.com/jrsteele09/go-access-client/backend"
	"github.com/jrsteele09/go-access-client/servers"
	"github.com/jrsteele09/go-access-client/settings"
	"github.com/jrsteele09/go-access-client/token"
)

const usage = `usage: accessctl <command> [args]

commands:
  status                    show session and saved servers
  login -user NAME          sign in (password from -password or ACCESS_PASSWORD)
  logout                    sign out
  refresh                   renew the session now
  servers                   check and list saved servers
  servers add ID            save a server
  servers remove ID         forget a server
  servers request ID        request access to a server
  set-url URL               change the backend server URL
  watch                     poll server status until interrupted`

var errUsage = errors.New(usage)

type command struct {
	name     string
	args     []string
	user     string
	password string
}

func parseCommand(args []string) (command, error) {
	if len(args) == 0 {
		return command{}, errUsage
	}
	cmd := command{name: args[0], args: args[1:]}

	switch cmd.name {
	case "login":
		fs := flag.NewFlagSet("login", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		fs.StringVar(&cmd.user, "user", "", "account name")
		fs.StringVar(&cmd.password, "password", os.Getenv("ACCESS_PASSWORD"), "account password")
		if err := fs.Parse(cmd.args); err != nil {
			return command{}, fmt.Errorf("login: %w", err)
		}
		cmd.args = fs.Args()
	case "set-url":
		if len(cmd.args) != 1 {
			return command{}, errUsage
		}
	case "servers":
		if len(cmd.args) == 0 {
			break
		}
		switch cmd.args[0] {
		case "add", "remove", "request":
			if len(cmd.args) != 2 {
				return command{}, errUsage
			}
		default:
			return command{}, errUsage
		}
	case "status", "logout", "refresh", "watch":
	default:
		return command{}, errUsage
	}
	return cmd, nil
}

func (c command) exec(ctx context.Context, a *app.App, w io.Writer) error {
	switch c.name {
	case "status":
		printStatus(w, a)
		return nil

	case "login":
		if err := a.Sessions.Login(ctx, c.user, c.password); err != nil {
			if msg := a.Sessions.State().Message; msg != "" {
				return errors.New(msg)
			}
			return err
		}
		fmt.Fprintf(w, "%sSigned in as %s%s\n", Green, a.Sessions.State().Identifier, ResetColor)
		return nil

	case "logout":
		a.Sessions.Logout(ctx)
		fmt.Fprintln(w, "Signed out")
		return nil

	case "refresh":
		performed, err := a.Sessions.Refresh(ctx)
		if err != nil {
			return errors.New(backend.Message(err))
		}
		if !performed {
			fmt.Fprintln(w, "A refresh is already in progress")
			return nil
		}
		printStatus(w, a)
		return nil

	case "set-url":
		if err := a.Settings.UpdateServerURL(ctx, c.args[0]); err != nil {
			return errors.New(settings.Message(err))
		}
		fmt.Fprintf(w, "Server URL set to %s\n", a.Settings.ServerURL())
		return nil

	case "servers":
		return c.execServers(ctx, a, w)
	}
	return errUsage
}

func (c command) execServers(ctx context.Context, a *app.App, w io.Writer) error {
	if len(c.args) == 0 {
		a.Servers.SyncAll(ctx)
		printServers(w, a.Servers.List())
		return nil
	}

	id := c.args[1]
	var err error
	switch c.args[0] {
	case "add":
		err = a.Servers.Add(ctx, id)
	case "remove":
		err = a.Servers.Remove(ctx, id)
	case "request":
		err = a.Servers.RequestAccess(ctx, id)
	}
	if err != nil {
		if errors.Is(err, servers.ErrEmptyServerID) {
			return err
		}
		return errors.New(backend.Message(err))
	}
	printServers(w, a.Servers.List())
	return nil
}

func printStatus(w io.Writer, a *app.App) {
	st := a.Sessions.State()
	fmt.Fprintf(w, "Server:   %s\n", a.Settings.ServerURL())
	if st.Authenticated() {
		fmt.Fprintf(w, "Session:  %s%s%s (%s)\n", Green, st.Status, ResetColor, st.Identifier)
		if exp, ok := token.ExpiryOf(a.Sessions.Token()); ok {
			fmt.Fprintf(w, "Expires:  %s\n", exp.Local().Format("2006-01-02 15:04:05"))
		}
		if d, ok := a.Sessions.NextRefresh(); ok {
			fmt.Fprintf(w, "Refresh:  in %s\n", d.Round(time.Second))
		}
	} else {
		fmt.Fprintf(w, "Session:  %s%s%s\n", Yellow, st.Status, ResetColor)
	}
	if st.Message != "" {
		fmt.Fprintf(w, "Message:  %s\n", st.Message)
	}
	printServers(w, a.Servers.List())
}

func printServers(w io.Writer, list []servers.Record) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No saved servers")
		return
	}
	width := 0
	for _, rec := range list {
		width = max(width, len(rec.ID))
	}
	for _, rec := range list {
		line := fmt.Sprintf("  %-*s  %s", width, rec.ID, colourStatus(rec.Status))
		if remaining := servers.FormatRemaining(rec.TimeRemaining); remaining != "" {
			line += "  " + remaining
		}
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}
}

func printServerUpdates(w io.Writer, updates <-chan []servers.Record) {
	for list := range updates {
		fmt.Fprintln(w, Gray+"--"+ResetColor)
		printServers(w, list)
	}
}
