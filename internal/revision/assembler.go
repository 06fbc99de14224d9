package revision

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Metadata defaults applied when the caller leaves a field blank.
const (
	DefaultAuthors     = "Anonymous"
	DefaultTitle       = "Untitled revision"
	DefaultDescription = "No description"
)

// Metadata is the provenance header of one revision.
type Metadata struct {
	Parent      *ID    `json:"parent_revision"`
	Revision    ID     `json:"revision"`
	Authors     string `json:"authors"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// HasParent reports whether the revision extends an earlier one.
func (m Metadata) HasParent() bool {
	return m.Parent != nil
}

// ParentID returns the parent id or zero for a root revision.
func (m Metadata) ParentID() ID {
	if m.Parent == nil {
		return 0
	}
	return *m.Parent
}

// Revision bundles the deltas of one atomic change with its metadata.
type Revision struct {
	Metadata Metadata `json:"metadata"`
	Data     []Delta  `json:"data"`
}

// ID returns the revision id.
func (r Revision) ID() ID {
	return r.Metadata.Revision
}

// Record is a stored entity whose changes are tracked.
type Record interface {
	RecordKind() Kind
	RecordID() int64
}

// Mapper reduces one record to its plain representation.
type Mapper func(Record) (Plain, error)

// Config holds the explicit dependencies of an Assembler.
type Config struct {
	Mappers   map[Kind]Mapper
	Generator IDGenerator
	// Workers bounds GenerateDeltas concurrency; zero uses GOMAXPROCS.
	Workers int
}

// Assembler builds deltas, metadata and revisions.
type Assembler struct {
	mappers map[Kind]Mapper
	gen     IDGenerator
	workers int
}

// NewAssembler constructs an assembler from cfg.
func NewAssembler(cfg Config) (*Assembler, error) {
	if cfg.Generator == nil {
		return nil, errors.New("revision id generator is required")
	}
	mappers := make(map[Kind]Mapper, len(cfg.Mappers))
	for kind, mapper := range cfg.Mappers {
		if mapper == nil {
			continue
		}
		mappers[NormalizeKind(kind)] = mapper
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Assembler{mappers: mappers, gen: cfg.Generator, workers: workers}, nil
}

// MetadataInput holds caller-supplied metadata. Blank strings and a zero
// Revision count as unsupplied.
type MetadataInput struct {
	Parent      *ID
	Revision    ID
	Authors     string
	Title       string
	Description string
}

// GenerateMetadata fills blank fields with defaults and allocates an id when none is given.
func (a *Assembler) GenerateMetadata(in MetadataInput) Metadata {
	meta := Metadata{
		Revision:    in.Revision,
		Authors:     firstNonBlank(in.Authors, DefaultAuthors),
		Title:       firstNonBlank(in.Title, DefaultTitle),
		Description: firstNonBlank(in.Description, DefaultDescription),
	}
	if in.Parent != nil {
		parent := *in.Parent
		meta.Parent = &parent
	}
	if meta.Revision == 0 {
		meta.Revision = a.gen.Next()
	}
	return meta
}

// GenerateDelta diffs two versions of the same record. old may be nil for creation.
func (a *Assembler) GenerateDelta(old, new Record) (Delta, error) {
	if new == nil {
		return Delta{}, errors.New("new record is required")
	}
	kind := NormalizeKind(new.RecordKind())
	if old != nil {
		if oldKind := NormalizeKind(old.RecordKind()); oldKind != kind {
			return Delta{}, fmt.Errorf("%w: %s vs %s", ErrTypeMismatch, oldKind, kind)
		}
		if old.RecordID() != 0 && old.RecordID() != new.RecordID() {
			return Delta{}, fmt.Errorf("%w: %d vs %d", ErrIdentityMismatch, old.RecordID(), new.RecordID())
		}
	}
	mapper, ok := a.mappers[kind]
	if !ok {
		return Delta{}, fmt.Errorf("%w: %q", ErrUnknownRecordKind, kind)
	}

	var oldPlain Plain
	if old != nil {
		var err error
		if oldPlain, err = mapper(old); err != nil {
			return Delta{}, fmt.Errorf("map old %s %d: %w", kind, old.RecordID(), err)
		}
		if oldPlain == nil {
			oldPlain = Plain{}
		}
	}
	newPlain, err := mapper(new)
	if err != nil {
		return Delta{}, fmt.Errorf("map new %s %d: %w", kind, new.RecordID(), err)
	}
	if newPlain == nil {
		newPlain = Plain{}
	}
	return NewDelta(kind, new.RecordID(), oldPlain, newPlain)
}

// Change pairs the before and after versions of one record.
type Change struct {
	Old Record
	New Record
}

// GenerateDeltas diffs several changes concurrently and returns deltas in input order.
func (a *Assembler) GenerateDeltas(ctx context.Context, changes []Change) ([]Delta, error) {
	out := make([]Delta, len(changes))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i, change := range changes {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			delta, err := a.GenerateDelta(change.Old, change.New)
			if err != nil {
				return fmt.Errorf("change %d: %w", i, err)
			}
			out[i] = delta
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// GenerateRevision packages metadata and deltas into one revision.
func (a *Assembler) GenerateRevision(meta Metadata, deltas []Delta) Revision {
	data := make([]Delta, len(deltas))
	copy(data, deltas)
	return Revision{Metadata: meta, Data: data}
}

// firstNonBlank returns v unless it is blank.
func firstNonBlank(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return strings.TrimSpace(v)
}
