// Package cli provides the interactive wallet command-line client.
//
// It wires configuration, the account runtime and an interactive REPL. A
// session opens (or registers) one account, after which the user can
// inspect and edit attributes, relationships and settings, run syncs and
// deal with external events that failed to apply.
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
// See runREPL for the command set.
package cli
