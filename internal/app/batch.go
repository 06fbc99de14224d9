package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hylla/lcarev/internal/domain"
	"github.com/hylla/lcarev/internal/revision"
)

// MethodInput holds input values for method saves.
type MethodInput struct {
	ID           int64
	Name         []string
	Unit         string
	Description  string
	Abbreviation string
}

// Batch stages several record saves that commit as one revision.
type Batch struct {
	svc    *Service
	stages []stage
	keys   map[recordKey]struct{}
	err    error
}

// stage is one pending record save.
type stage struct {
	key   recordKey
	build func() (revision.Record, error)
}

// CommitResult describes one committed batch.
type CommitResult struct {
	// Records holds the saved records in staging order.
	Records []revision.Record
	// Revision is zero when no staged record changed.
	Revision  revision.Revision
	Committed bool
}

// NewBatch starts an empty batch.
func (s *Service) NewBatch() *Batch {
	return &Batch{svc: s, keys: map[recordKey]struct{}{}}
}

// Len returns the number of staged saves.
func (b *Batch) Len() int {
	return len(b.stages)
}

// PutActivity stages an activity save and returns its id, allocating one when unset.
func (b *Batch) PutActivity(in domain.ActivityInput) int64 {
	in.ID = b.allocate(in.ID)
	b.add(recordKey{kind: revision.KindActivity, id: in.ID}, func() (revision.Record, error) {
		return domain.NewActivity(in)
	})
	return in.ID
}

// PutExchange stages an exchange save and returns its id, allocating one when unset.
func (b *Batch) PutExchange(in domain.ExchangeInput) int64 {
	in.ID = b.allocate(in.ID)
	b.add(recordKey{kind: revision.KindExchange, id: in.ID}, func() (revision.Record, error) {
		return domain.NewExchange(in)
	})
	return in.ID
}

// PutMethod stages a method save and returns its id, allocating one when unset.
func (b *Batch) PutMethod(in MethodInput) int64 {
	in.ID = b.allocate(in.ID)
	b.add(recordKey{kind: revision.KindMethod, id: in.ID}, func() (revision.Record, error) {
		m, err := domain.NewMethod(in.ID, in.Name, in.Unit, in.Description)
		if err != nil {
			return nil, err
		}
		if abbreviation := strings.TrimSpace(in.Abbreviation); abbreviation != "" {
			m.Abbreviation = abbreviation
		}
		return m, nil
	})
	return in.ID
}

// allocate returns id, or a fresh generator value for ids left unset.
func (b *Batch) allocate(id int64) int64 {
	if id != 0 {
		return id
	}
	return int64(b.svc.gen.Next())
}

// add records one stage, rejecting a second save of the same record.
func (b *Batch) add(key recordKey, build func() (revision.Record, error)) {
	if b.err != nil {
		return
	}
	if _, ok := b.keys[key]; ok {
		b.err = fmt.Errorf("%w: %s staged twice", ErrInvalidBatch, key)
		return
	}
	b.keys[key] = struct{}{}
	b.stages = append(b.stages, stage{key: key, build: build})
}

// Commit validates every staged record, diffs it against stored state and writes all
// changed records with one revision. Nothing is written when any record fails.
func (b *Batch) Commit(ctx context.Context) (CommitResult, error) {
	if b.err != nil {
		return CommitResult{}, b.err
	}
	if len(b.stages) == 0 {
		return CommitResult{}, fmt.Errorf("%w: nothing staged", ErrInvalidBatch)
	}
	s := b.svc

	keys := make([]recordKey, 0, len(b.stages))
	for _, st := range b.stages {
		keys = append(keys, st.key)
	}
	unlock := s.locks.Lock(keys...)
	defer unlock()

	changes := make([]revision.Change, 0, len(b.stages))
	records := make([]revision.Record, 0, len(b.stages))
	for _, st := range b.stages {
		next, err := st.build()
		if err != nil {
			return CommitResult{}, fmt.Errorf("%s: %w", st.key, err)
		}
		old, err := s.codecs[st.key.kind].load(ctx, s.repo, st.key.id)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return CommitResult{}, fmt.Errorf("load %s: %w", st.key, err)
		}
		changes = append(changes, revision.Change{Old: old, New: next})
		records = append(records, next)
	}

	deltas, err := s.assembler.GenerateDeltas(ctx, changes)
	if err != nil {
		return CommitResult{}, err
	}
	changedDeltas := make([]revision.Delta, 0, len(deltas))
	changedRecords := make([]revision.Record, 0, len(deltas))
	for i, delta := range deltas {
		if changes[i].Old != nil && delta.Patch.Empty() {
			continue
		}
		changedDeltas = append(changedDeltas, delta)
		changedRecords = append(changedRecords, records[i])
	}
	if len(changedDeltas) == 0 {
		s.logger.Debug("batch unchanged", "records", len(records))
		return CommitResult{Records: records}, nil
	}

	rev, err := s.commit(ctx, changedRecords, changedDeltas)
	if err != nil {
		return CommitResult{}, err
	}
	return CommitResult{Records: records, Revision: rev, Committed: true}, nil
}
