package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/edgeiot/devicedb/db"
)

// shell is the interactive command loop, grounded on the teacher's REPL
// shape: a liner.State for history/completion, one cmdXxx method per
// command, dispatched from a single Fields()-based switch.
type shell struct {
	store *db.DB
	model string
	liner *liner.State
}

func runShell(args []string) error {
	fs, cf := newCommonFlagSet("shell")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := openStore(cf, db.OpenFlags{})
	if err != nil {
		return err
	}
	defer store.Close()

	sh := &shell{store: store, model: cf.model}

	return sh.run()
}

func shellHistoryFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".devicedbctl_history")
}

func (s *shell) run() error {
	s.liner = liner.NewLiner()
	defer s.liner.Close()

	s.liner.SetCtrlCAborts(true)
	s.liner.SetCompleter(s.completer)

	if f, err := os.Open(shellHistoryFile()); err == nil {
		s.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Printf("devicedbctl shell (model=%q)\n", s.model)
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := s.liner.Prompt("devicedb> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println("\nBye!")
				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		s.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		rest := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			fmt.Println("Bye!")
			s.saveHistory()

			return nil

		case "help", "?":
			s.printHelp()

		case "use":
			s.cmdUse(rest)

		case "get":
			s.cmdGet(rest)

		case "find":
			s.cmdFind(rest)

		case "create":
			s.cmdCreate(rest)

		case "update":
			s.cmdUpdate(rest)

		case "remove", "rm":
			s.cmdRemove(rest)

		case "ttl":
			s.cmdTTL()

		case "compact":
			s.cmdCompact()

		case "save":
			s.cmdSave()

		case "clear", "cls":
			fmt.Print("\033[H\033[2J")

		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	s.saveHistory()

	return nil
}

func (s *shell) saveHistory() {
	path := shellHistoryFile()
	if path == "" {
		return
	}

	if f, err := os.Create(path); err == nil {
		s.liner.WriteHistory(f)
		f.Close()
	}
}

func (s *shell) completer(line string) []string {
	commands := []string{
		"use", "get", "find", "create", "update", "remove", "rm",
		"ttl", "compact", "save", "clear", "cls", "help", "exit", "quit", "q",
	}

	var out []string

	lower := strings.ToLower(line)
	for _, c := range commands {
		if strings.HasPrefix(c, lower) {
			out = append(out, c)
		}
	}

	return out
}

func (s *shell) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  use <model>                 set the active model for this session")
	fmt.Println("  get key=value...           fetch a single item")
	fmt.Println("  find [key=value...]        list matching items")
	fmt.Println("  create key=value...        insert an item")
	fmt.Println("  update key=value...        merge properties into a matching item")
	fmt.Println("  remove key=value...        delete matching items")
	fmt.Println("  ttl                        sweep and report expired items")
	fmt.Println("  compact                    force every item to cold form and save")
	fmt.Println("  save                       force a snapshot now")
	fmt.Println("  help                       show this help")
	fmt.Println("  exit / quit / q            leave the shell")
}

func (s *shell) cmdUse(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: use <model>")
		return
	}

	s.model = args[0]
	fmt.Printf("model set to %q\n", s.model)
}

func (s *shell) cmdGet(args []string) {
	props, err := parseProps(args)
	if err != nil {
		fmt.Println(err)
		return
	}

	item, err := s.store.Get(s.model, props, db.Params{})
	if err != nil {
		fmt.Println(err)
		return
	}

	s.printJSON(item)
}

func (s *shell) cmdFind(args []string) {
	limit := 0

	var propArgs []string

	for _, a := range args {
		if n, ok := strings.CutPrefix(a, "limit="); ok {
			if v, err := strconv.Atoi(n); err == nil {
				limit = v
				continue
			}
		}

		propArgs = append(propArgs, a)
	}

	props, err := parseProps(propArgs)
	if err != nil {
		fmt.Println(err)
		return
	}

	items, cursor, err := s.store.Find(s.model, props, db.Params{Limit: limit})
	if err != nil {
		fmt.Println(err)
		return
	}

	s.printJSON(items)

	if cursor != "" {
		fmt.Printf("next: %s\n", cursor)
	}
}

func (s *shell) cmdCreate(args []string) {
	props, err := parseProps(args)
	if err != nil {
		fmt.Println(err)
		return
	}

	item, err := s.store.Create(s.model, props, db.Params{})
	if err != nil {
		fmt.Println(err)
		return
	}

	s.printJSON(item)
}

func (s *shell) cmdUpdate(args []string) {
	props, err := parseProps(args)
	if err != nil {
		fmt.Println(err)
		return
	}

	item, err := s.store.Update(s.model, props, db.Params{})
	if err != nil {
		fmt.Println(err)
		return
	}

	s.printJSON(item)
}

func (s *shell) cmdRemove(args []string) {
	props, err := parseProps(args)
	if err != nil {
		fmt.Println(err)
		return
	}

	n, err := s.store.Remove(s.model, props, db.Params{Limit: -1})
	if err != nil {
		fmt.Println(err)
		return
	}

	fmt.Printf("removed %d item(s)\n", n)
}

func (s *shell) cmdTTL() {
	n := s.store.RemoveExpired(true)
	fmt.Printf("swept %d expired item(s)\n", n)
}

func (s *shell) cmdCompact() {
	s.store.Compact()

	if err := s.store.Save(); err != nil {
		fmt.Println(err)
		return
	}

	fmt.Println("ok")
}

func (s *shell) cmdSave() {
	if err := s.store.Save(); err != nil {
		fmt.Println(err)
		return
	}

	fmt.Println("ok")
}

func (s *shell) printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		fmt.Println(err)
	}
}
