package app

import (
	"context"
	"time"

	"github.com/hylla/lcarev/internal/domain"
	"github.com/hylla/lcarev/internal/revision"
)

// Repository represents repository data used by this package.
type Repository interface {
	GetActivity(context.Context, int64) (domain.Activity, error)
	ListActivities(context.Context) ([]domain.Activity, error)
	GetExchange(context.Context, int64) (domain.Exchange, error)
	ListExchanges(context.Context) ([]domain.Exchange, error)
	GetMethod(context.Context, int64) (domain.Method, error)
	ListMethods(context.Context) ([]domain.Method, error)

	// Head returns the revision a named head points at, or zero when the head is unset.
	Head(context.Context, string) (revision.ID, error)
	GetRevision(context.Context, revision.ID) (revision.Revision, error)
	ListRevisions(context.Context) ([]revision.Revision, error)

	// CommitChangeSet writes records, the revision and the moved head atomically.
	// It fails with ErrStaleHead when the revision parent is not the current head.
	CommitChangeSet(context.Context, ChangeSet) error
}

// ChangeSet is one atomic write: record upserts plus the revision describing them.
type ChangeSet struct {
	Head        string
	Records     []revision.Record
	Revision    revision.Revision
	CommittedAt time.Time
}
