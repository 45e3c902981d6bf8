package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/edgeiot/devicedb/db"
)

// commonFlags wires the --data/--schema/--model flags every subcommand
// (shell included) needs, mirroring the per-command pflag.FlagSet shape the teacher's
// internal/cli package used.
type commonFlags struct {
	data   string
	schema string
	model  string
}

func newCommonFlagSet(name string) (*pflag.FlagSet, *commonFlags) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	cf := &commonFlags{}

	fs.StringVar(&cf.data, "data", "", "path to the store's data file")
	fs.StringVar(&cf.schema, "schema", "", "path to the JSON5 schema file")
	fs.StringVar(&cf.model, "model", "", "model name (inferred from _type if omitted)")

	return fs, cf
}

// parseProps turns trailing "key=value" args into a properties map. Values
// that parse as a number or as true/false are stored as such; everything
// else is kept as a string, matching the loose JSON-ish typing the db
// package's type-mapping step (spec.md §4.3 step 9) will coerce anyway.
func parseProps(args []string) (map[string]any, error) {
	props := make(map[string]any, len(args))

	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("invalid property %q, want key=value", arg)
		}

		props[k] = coerceCLIValue(v)
	}

	return props, nil
}

func coerceCLIValue(v string) any {
	if v == "true" {
		return true
	}

	if v == "false" {
		return false
	}

	if n, err := strconv.ParseFloat(v, 64); err == nil {
		return n
	}

	return v
}

func openStore(cf *commonFlags, flags db.OpenFlags) (*db.DB, error) {
	if cf.data == "" || cf.schema == "" {
		return nil, fmt.Errorf("--data and --schema are required")
	}

	return db.Open(cf.data, cf.schema, db.DefaultConfig(), flags)
}
