package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/hylla/lcarev/internal/revision"
)

// RevisionBundleVersion defines a package constant value.
const RevisionBundleVersion = "lcarev.revisions.v1"

// RevisionBundle is a portable copy of one revision chain, ordered head first.
type RevisionBundle struct {
	Version    string            `json:"version"`
	ExportedAt time.Time         `json:"exported_at"`
	Head       revision.ID       `json:"head"`
	Revisions  []json.RawMessage `json:"revisions"`
}

// ImportResult counts what an import did.
type ImportResult struct {
	Applied int
	Skipped int
}

// ExportRevisions bundles the chain from the current head to the root.
func (s *Service) ExportRevisions(ctx context.Context) (RevisionBundle, error) {
	graph, err := s.Graph(ctx)
	if err != nil {
		return RevisionBundle{}, err
	}
	bundle := RevisionBundle{
		Version:    RevisionBundleVersion,
		ExportedAt: s.clock().UTC(),
		Head:       graph.Head(),
		Revisions:  make([]json.RawMessage, 0, graph.Len()),
	}
	for rev, err := range graph.Walk() {
		if err != nil {
			return RevisionBundle{}, err
		}
		encoded, err := revision.Encode(rev)
		if err != nil {
			return RevisionBundle{}, fmt.Errorf("encode revision %s: %w", rev.ID(), err)
		}
		bundle.Revisions = append(bundle.Revisions, encoded)
	}
	s.logger.Info("revisions exported", "head", bundle.Head, "revisions", len(bundle.Revisions))
	return bundle, nil
}

// Validate checks the bundle version and decodes its revisions, checking that they
// form one unbroken chain from the head to a root.
func (b RevisionBundle) Validate() ([]revision.Revision, error) {
	if b.Version != RevisionBundleVersion {
		return nil, fmt.Errorf("%w: version %q", ErrUnsupportedBundle, b.Version)
	}
	revs := make([]revision.Revision, 0, len(b.Revisions))
	for i, raw := range b.Revisions {
		rev, err := revision.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("revisions[%d]: %w", i, err)
		}
		revs = append(revs, rev)
	}
	if len(revs) == 0 {
		if b.Head != 0 {
			return nil, fmt.Errorf("%w: head %s without revisions", revision.ErrBrokenHistory, b.Head)
		}
		return revs, nil
	}
	if revs[0].ID() != b.Head {
		return nil, fmt.Errorf("%w: bundle head %s, first revision %s", revision.ErrUnknownHead, b.Head, revs[0].ID())
	}
	for i, rev := range revs {
		if i == len(revs)-1 {
			if rev.Metadata.HasParent() {
				return nil, fmt.Errorf("%w: revision %s parent %s missing from bundle", revision.ErrBrokenHistory, rev.ID(), rev.Metadata.ParentID())
			}
			continue
		}
		if rev.Metadata.ParentID() != revs[i+1].ID() {
			return nil, fmt.Errorf("%w: revision %s parent %s, next %s", revision.ErrBrokenHistory, rev.ID(), rev.Metadata.ParentID(), revs[i+1].ID())
		}
	}
	return revs, nil
}

// ImportRevisions replays a bundle root first, skipping revisions already present.
func (s *Service) ImportRevisions(ctx context.Context, bundle RevisionBundle) (ImportResult, error) {
	revs, err := bundle.Validate()
	if err != nil {
		return ImportResult{}, err
	}
	slices.Reverse(revs)

	var res ImportResult
	for _, rev := range revs {
		if _, err := s.repo.GetRevision(ctx, rev.ID()); err == nil {
			res.Skipped++
			continue
		} else if !errors.Is(err, ErrNotFound) {
			return res, err
		}
		if err := s.ReplayRevision(ctx, rev); err != nil {
			return res, err
		}
		res.Applied++
	}
	s.logger.Info("revisions imported", "head", bundle.Head, "applied", res.Applied, "skipped", res.Skipped)
	return res, nil
}
