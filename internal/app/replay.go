package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/hylla/lcarev/internal/revision"
)

// ReplayRevision applies a revision produced by another holder of the same dataset.
// The revision must extend the local head. Every delta is applied to the current
// plain state of its record and the record is rebuilt from the result. A patch
// mismatch, or a result the record type cannot hold verbatim, aborts the whole
// revision before anything is written.
func (s *Service) ReplayRevision(ctx context.Context, rev revision.Revision) error {
	if rev.ID() <= 0 {
		return fmt.Errorf("%w: revision id is required", revision.ErrDecode)
	}
	keys := make([]recordKey, 0, len(rev.Data))
	for _, d := range rev.Data {
		key := recordKey{kind: revision.NormalizeKind(d.Kind), id: d.ID}
		if _, ok := s.codecs[key.kind]; !ok {
			return fmt.Errorf("replay revision %s: %w: %s", rev.ID(), revision.ErrUnknownRecordKind, d.Kind)
		}
		keys = append(keys, key)
	}

	unlock := s.locks.Lock(keys...)
	defer unlock()
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	if _, err := s.repo.GetRevision(ctx, rev.ID()); err == nil {
		return fmt.Errorf("%w: %s", ErrRevisionExists, rev.ID())
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	head, err := s.repo.Head(ctx, s.head)
	if err != nil {
		return err
	}
	if rev.Metadata.ParentID() != head {
		return fmt.Errorf("%w: revision %s has parent %s, local head is %s", ErrDiverged, rev.ID(), rev.Metadata.ParentID(), head)
	}

	states := make(map[recordKey]revision.Plain, len(keys))
	order := make([]recordKey, 0, len(keys))
	for i, d := range rev.Data {
		key := keys[i]
		codec := s.codecs[key.kind]
		base, seen := states[key]
		if !seen {
			current, err := codec.load(ctx, s.repo, key.id)
			switch {
			case err == nil:
				base, err = codec.toPlain(current)
				if err != nil {
					return fmt.Errorf("replay revision %s: %s: %w", rev.ID(), key, err)
				}
			case errors.Is(err, ErrNotFound):
				base = nil
			default:
				return err
			}
			order = append(order, key)
		}
		next, err := d.Apply(base)
		if err != nil {
			return fmt.Errorf("replay revision %s: %w", rev.ID(), err)
		}
		states[key] = next
	}

	records := make([]revision.Record, 0, len(order))
	for _, key := range order {
		codec := s.codecs[key.kind]
		rec, err := codec.fromPlain(key.id, states[key])
		if err != nil {
			return fmt.Errorf("replay revision %s: rebuild %s: %w", rev.ID(), key, err)
		}
		// The stored record must hold exactly the state the revision log describes.
		rebuilt, err := codec.toPlain(rec)
		if err != nil {
			return fmt.Errorf("replay revision %s: %s: %w", rev.ID(), key, err)
		}
		if !revision.Equal(rebuilt, states[key]) {
			return fmt.Errorf("replay revision %s: %w: %s", rev.ID(), ErrUnrepresentableState, key)
		}
		records = append(records, rec)
	}

	if err := s.repo.CommitChangeSet(ctx, ChangeSet{
		Head:        s.head,
		Records:     records,
		Revision:    rev,
		CommittedAt: s.clock().UTC(),
	}); err != nil {
		s.logger.Error("revision replay failed", "revision", rev.ID(), "err", err)
		return err
	}
	s.logger.Info("revision replayed", "revision", rev.ID(), "parent", head, "records", len(records), "authors", rev.Metadata.Authors)
	return nil
}
