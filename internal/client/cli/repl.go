package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isOpen() bool
	Open(ctx context.Context) error
	Register(ctx context.Context) error
	CloseAccount(ctx context.Context) error
	Sync(ctx context.Context) error
	Status(ctx context.Context) error
	Attributes(ctx context.Context) error
	AddAttribute(ctx context.Context, args []string) error
	Succeed(ctx context.Context, args []string) error
	Relationships(ctx context.Context) error
	Terminate(ctx context.Context, args []string) error
	Decompose(ctx context.Context, args []string) error
	Settings(ctx context.Context) error
	Set(ctx context.Context, args []string) error
	Failures(ctx context.Context) error
	Resolve(ctx context.Context, args []string) error
}

// runREPL reads a line from reader, parses the first token as the command
// and dispatches to a. The loop exits on EOF or when the user types
// "exit" or "quit".
//
//	No account open:
//	  help, open, register, exit
//
//	Account open:
//	  sync                         run a full synchronization
//	  status                       cursor, queue length and failures
//	  attributes                   list current attributes
//	  addattr <type> <value>       create an attribute
//	  succeed <id> <value>         replace an attribute by a successor
//	  relationships                list relationships
//	  terminate <id>               terminate a relationship
//	  decompose <id>               remove a terminated relationship
//	  settings                     list settings
//	  set <key> <json>             create or update a setting
//	  failures                     list external events that failed
//	  resolve <event id>           skip a failed event
//	  close                        close the account
//
// Handler errors are printed and the loop continues.
//
// Prompts issued by handlers read from the same reader, so the loop never
// buffers past the current line.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("dw%s> ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		if cmd == "exit" || cmd == "quit" {
			printlnFn("Bye!")
			return
		}
		if cmd == "help" {
			if a.isOpen() {
				printlnFn("Available commands: sync, status, attributes, addattr, succeed, relationships, terminate, decompose, settings, set, failures, resolve, close, exit")
			} else {
				printlnFn("Available commands: open, register, exit")
			}
			continue
		}

		switch cmd {
		case "open":
			err = a.Open(ctx)
		case "register":
			err = a.Register(ctx)
		case "close":
			err = a.CloseAccount(ctx)
		case "sync":
			err = a.Sync(ctx)
		case "status":
			err = a.Status(ctx)
		case "attributes":
			err = a.Attributes(ctx)
		case "addattr":
			err = a.AddAttribute(ctx, args)
		case "succeed":
			err = a.Succeed(ctx, args)
		case "relationships":
			err = a.Relationships(ctx)
		case "terminate":
			err = a.Terminate(ctx, args)
		case "decompose":
			err = a.Decompose(ctx, args)
		case "settings":
			err = a.Settings(ctx)
		case "set":
			err = a.Set(ctx, args)
		case "failures":
			err = a.Failures(ctx)
		case "resolve":
			err = a.Resolve(ctx, args)
		default:
			printlnFn("Unknown command:", cmd)
			continue
		}
		if err != nil {
			printlnFn("Error:", err)
		}
	}
}
