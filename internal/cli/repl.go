package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a stub.
type execIface interface {
	isLoggedIn() bool
	Login(ctx context.Context) error
	Register(ctx context.Context) error
	Logout(ctx context.Context) error
	Whoami(ctx context.Context) error
	Refresh(ctx context.Context) error
	Activity(ctx context.Context) error
}

// runREPL reads a line from the scanner, parses the first token as the
// command, and dispatches to methods on a. The loop exits on scanner EOF
// or when the user types "exit" or "quit".
//
// Command errors are ignored here; handlers render their own feedback,
// which keeps the loop resilient and focused on I/O.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("ayla %s> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd := parts[0]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: whoami, activity, refresh, logout, exit")
			} else {
				printlnFn("Available commands: login, register, exit")
			}

		case "login":
			_ = a.Login(ctx)

		case "register":
			_ = a.Register(ctx)

		case "logout":
			_ = a.Logout(ctx)

		case "whoami", "me":
			_ = a.Whoami(ctx)

		case "refresh":
			_ = a.Refresh(ctx)

		case "activity":
			_ = a.Activity(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}
