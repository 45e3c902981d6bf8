package db

import (
	"time"

	dbfs "github.com/edgeiot/devicedb/pkg/fs"
)

// Config holds the process-wide tunables spec.md §6 lists as configuration
// knobs. All fields have sane defaults via [DefaultConfig]; Open fills any
// zero-valued field with its default, so a zero-value Config is usable too.
type Config struct {
	// MaxJournalAge is the per spec.md §4.5/§5 rollover threshold: once the
	// journal is at least this old, the next mutation triggers a full
	// snapshot + truncate instead of another append. Default 60s.
	MaxJournalAge time.Duration

	// MaxJournalSize is the cumulative byte-size rollover threshold.
	// Default 1 MiB.
	MaxJournalSize int64

	// Timestamps turns on created/updated stamping at runtime. When false,
	// the schema's params.timestamps alone decides.
	Timestamps bool

	// TypeField names the type-discriminator field. Defaults to the
	// schema's params.typeField, itself defaulting to "_type".
	TypeField string

	// Logf, if set, receives info-level diagnostics — currently only
	// "unknown property name dropped" (spec.md §7's one non-silent
	// swallow). There is no structured logging library anywhere in the
	// retrieval pack for a component at this layer, so this is a bare
	// printf-shaped hook the embedding agent wires to its own log sink,
	// the same shape as the teacher's optional Config callbacks in
	// pkg/mddb/types.go (AfterPut/AfterDelete) — see DESIGN.md.
	Logf func(format string, args ...any)

	// FS overrides the filesystem seam used for the journal and snapshot.
	// Defaults to [dbfs.NewReal].
	FS dbfs.FS

	// Scheduler overrides the delayed-commit timer. Defaults to a
	// time.AfterFunc-backed implementation.
	Scheduler Scheduler
}

// DefaultConfig returns the spec.md §5 defaults: 1 MiB / 60 s rollover
// thresholds, timestamps off, typeField "_type".
func DefaultConfig() Config {
	return Config{
		MaxJournalAge:  60 * time.Second,
		MaxJournalSize: 1 << 20,
		TypeField:      "_type",
	}
}

func (c *Config) fillDefaults() {
	d := DefaultConfig()

	if c.MaxJournalAge <= 0 {
		c.MaxJournalAge = d.MaxJournalAge
	}

	if c.MaxJournalSize <= 0 {
		c.MaxJournalSize = d.MaxJournalSize
	}

	if c.TypeField == "" {
		c.TypeField = d.TypeField
	}

	if c.FS == nil {
		c.FS = dbfs.NewReal()
	}

	if c.Scheduler == nil {
		c.Scheduler = newStdScheduler()
	}
}

func (c *Config) logf(format string, args ...any) {
	if c.Logf != nil {
		c.Logf(format, args...)
	}
}

// OpenFlags are the open-time modifiers spec.md §6 names.
type OpenFlags struct {
	// ReadOnly prevents all writes; mutating operations fail with
	// KindBadState.
	ReadOnly bool

	// Reset deletes any existing snapshot and journal before opening,
	// starting from an empty store.
	Reset bool
}
