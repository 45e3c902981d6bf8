package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/natefinch/atomic"

	"github.com/edgeiot/devicedb/db"
)

func runOpenCheck(args []string) error {
	fs, cf := newCommonFlagSet("open")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := openStore(cf, db.OpenFlags{ReadOnly: true})
	if err != nil {
		return err
	}
	defer store.Close()

	schema, err := db.LoadSchema(cf.schema)
	if err != nil {
		return err
	}

	count := 0
	for name := range schema.Models {
		items, _, err := store.Find(name, nil, db.Params{})
		if err != nil {
			return err
		}

		count += len(items)
	}

	fmt.Printf("ok: %d item(s)\n", count)

	return nil
}

func runGet(args []string) error {
	fs, cf := newCommonFlagSet("get")
	limit := fs.Int("limit", 0, "unused for get; present for flag symmetry")
	_ = limit

	if err := fs.Parse(args); err != nil {
		return err
	}

	props, err := parseProps(fs.Args())
	if err != nil {
		return err
	}

	store, err := openStore(cf, db.OpenFlags{ReadOnly: true})
	if err != nil {
		return err
	}
	defer store.Close()

	item, err := store.Get(cf.model, props, db.Params{})
	if err != nil {
		return err
	}

	return printJSON(item)
}

func runFind(args []string) error {
	fs, cf := newCommonFlagSet("find")
	limit := fs.Int("limit", 0, "max items to return (0 = unlimited)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	props, err := parseProps(fs.Args())
	if err != nil {
		return err
	}

	store, err := openStore(cf, db.OpenFlags{ReadOnly: true})
	if err != nil {
		return err
	}
	defer store.Close()

	items, cursor, err := store.Find(cf.model, props, db.Params{Limit: *limit})
	if err != nil {
		return err
	}

	if err := printJSON(items); err != nil {
		return err
	}

	if cursor != "" {
		fmt.Fprintf(os.Stderr, "next: %s\n", cursor)
	}

	return nil
}

func runCreate(args []string) error {
	fs, cf := newCommonFlagSet("create")
	upsert := fs.Bool("upsert", false, "upsert instead of erroring on collision")

	if err := fs.Parse(args); err != nil {
		return err
	}

	props, err := parseProps(fs.Args())
	if err != nil {
		return err
	}

	store, err := openStore(cf, db.OpenFlags{})
	if err != nil {
		return err
	}
	defer store.Close()

	item, err := store.Create(cf.model, props, db.Params{Upsert: *upsert})
	if err != nil {
		return err
	}

	return printJSON(item)
}

func runCompact(args []string) error {
	fs, cf := newCommonFlagSet("compact")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := openStore(cf, db.OpenFlags{})
	if err != nil {
		return err
	}
	defer store.Close()

	store.Compact()

	return store.Save()
}

// runExport dumps every item of --model to a JSON file. Without --model the
// store's Find rejects the request for lacking a model name, and the command
// fails without writing anything. The file is a side artifact for backup/inspection, separate
// from the store's own journal and snapshot, so it's written with
// natefinch/atomic rather than the db package's internal snapshot codec.
func runExport(args []string) error {
	fs, cf := newCommonFlagSet("export")
	out := fs.String("out", "", "path to write the export to")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *out == "" {
		return fmt.Errorf("--out is required")
	}

	store, err := openStore(cf, db.OpenFlags{ReadOnly: true})
	if err != nil {
		return err
	}
	defer store.Close()

	items, _, err := store.Find(cf.model, nil, db.Params{})
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")

	if err := enc.Encode(items); err != nil {
		return err
	}

	if err := atomic.WriteFile(*out, &buf); err != nil {
		return fmt.Errorf("export: %w", err)
	}

	fmt.Printf("exported %d item(s) to %s\n", len(items), *out)

	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
