package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/noteforge/core/items"
	"github.com/noteforge/core/store"
)

// repl runs the interactive command loop.
func (a *app) repl(ctx context.Context) {
	fmt.Println("noteforge sync client (type 'help' for commands)")
	scanner := bufio.NewScanner(os.Stdin)

	a.login(ctx)
	go a.watchOnlineStatus(ctx)

	for {
		fmt.Printf("noteforge %s> ", a.status())
		if !scanner.Scan() {
			break
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			fmt.Println("Available commands: register, login, logout, note <text>, list, sync, exit")
		case "register":
			a.register(ctx)
		case "login":
			a.login(ctx)
		case "logout":
			a.logout(ctx)
		case "note":
			a.addNote(strings.Join(args, " "))
		case "list":
			a.list()
		case "sync":
			a.doSync(ctx)
		case "exit", "quit":
			fmt.Println("bye")
			return
		default:
			fmt.Println("unknown command:", cmd)
		}
	}
}

func (a *app) addNote(text string) {
	if !a.loggedIn() {
		fmt.Println("log in first")
		return
	}
	it := items.New("Note", items.Content{"title": "", "text": text}, time.Now())
	a.store.Insert(it, store.SourceLocalSaved)
	fmt.Println("created", it.UUID)
}

func (a *app) list() {
	for _, it := range a.store.All() {
		fmt.Printf("%s\t%s\n", it.UUID, it.ContentType)
	}
}

func (a *app) doSync(ctx context.Context) {
	if !a.loggedIn() {
		fmt.Println("log in first")
		return
	}
	if err := a.engine.Sync(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "sync failed:", err)
	}
}

// watchOnlineStatus pings the server on an interval and flips the session
// between online and offline mode as reachability changes. It leaves a
// signed-out session alone.
func (a *app) watchOnlineStatus(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.OnlineCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if !a.loggedIn() {
				continue
			}
			pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := a.transport.Ping(pingCtx)
			cancel()

			if err != nil {
				a.setMode(modeOffline)
			} else {
				a.setMode(modeOnline)
			}
		case <-ctx.Done():
			return
		}
	}
}
