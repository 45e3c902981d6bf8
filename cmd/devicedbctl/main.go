// Command devicedbctl is a small operator CLI over the db package: open a
// store against a data file and a schema, and run one-shot or interactive
// commands against it.
//
// Subcommands (grounded on the flag-set-per-command shape the teacher's
// internal/cli package used for its own subcommands):
//
//	devicedbctl get     --data PATH --schema PATH --model NAME key=value...
//	devicedbctl find     --data PATH --schema PATH --model NAME [--limit N] key=value...
//	devicedbctl create  --data PATH --schema PATH --model NAME key=value...
//	devicedbctl compact --data PATH --schema PATH
//	devicedbctl export  --data PATH --schema PATH --model NAME --out PATH
//	devicedbctl shell   --data PATH --schema PATH
package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error

	switch cmd {
	case "open":
		err = runOpenCheck(args)
	case "get":
		err = runGet(args)
	case "find":
		err = runFind(args)
	case "create":
		err = runCreate(args)
	case "compact":
		err = runCompact(args)
	case "export":
		err = runExport(args)
	case "shell":
		err = runShell(args)
	case "help", "-h", "--help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "devicedbctl: unknown command %q\n", cmd)
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "devicedbctl: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: devicedbctl <command> [flags]

commands:
  open     verify a store opens cleanly and report its item count
  get      fetch a single item
  find     list items matching properties
  create   insert an item
  compact  force every item to cold form and save
  export   dump matching items to a JSON file
  shell    interactive REPL against an open store`)
}
