package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hylla/lcarev/internal/domain"
	"github.com/hylla/lcarev/internal/revision"
)

// DefaultHead names the revision head used when none is configured.
const DefaultHead = "main"

// ServiceConfig holds configuration for service.
type ServiceConfig struct {
	Head           string
	DefaultAuthors string
	// Workers bounds concurrent delta generation inside one batch.
	Workers int
	Logger  Logger
}

// Logger receives structured service events.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
}

// Clock returns the current time.
type Clock func() time.Time

// Service represents service data used by this package.
type Service struct {
	repo           Repository
	gen            revision.IDGenerator
	assembler      *revision.Assembler
	codecs         map[revision.Kind]recordCodec
	clock          Clock
	head           string
	defaultAuthors string
	logger         Logger
	locks          *recordLocker
	// commitMu orders head reads with head moves.
	commitMu sync.Mutex
}

// NewService constructs a new value for this package.
func NewService(repo Repository, gen revision.IDGenerator, clock Clock, cfg ServiceConfig) (*Service, error) {
	if repo == nil {
		return nil, errors.New("repository is required")
	}
	if gen == nil {
		random, err := revision.NewRandomGenerator()
		if err != nil {
			return nil, fmt.Errorf("revision id generator: %w", err)
		}
		gen = random
	}
	if clock == nil {
		clock = time.Now
	}
	head := strings.TrimSpace(cfg.Head)
	if head == "" {
		head = DefaultHead
	}
	logger := cfg.Logger
	if logger == nil {
		logger = nopLogger{}
	}
	assembler, err := revision.NewAssembler(revision.Config{
		Mappers:   Mappers(),
		Generator: gen,
		Workers:   cfg.Workers,
	})
	if err != nil {
		return nil, err
	}

	return &Service{
		repo:           repo,
		gen:            gen,
		assembler:      assembler,
		codecs:         recordCodecs(),
		clock:          clock,
		head:           head,
		defaultAuthors: strings.TrimSpace(cfg.DefaultAuthors),
		logger:         logger,
		locks:          newRecordLocker(),
	}, nil
}

// HeadName returns the name of the head this service advances.
func (s *Service) HeadName() string {
	return s.head
}

// SaveActivity creates or updates one activity and records the change as a revision.
// The returned revision is zero when the activity was already in the requested state.
func (s *Service) SaveActivity(ctx context.Context, in domain.ActivityInput) (domain.Activity, revision.Revision, error) {
	b := s.NewBatch()
	b.PutActivity(in)
	res, err := b.Commit(ctx)
	if err != nil {
		return domain.Activity{}, revision.Revision{}, err
	}
	return res.Records[0].(domain.Activity), res.Revision, nil
}

// SaveExchange creates or updates one exchange and records the change as a revision.
func (s *Service) SaveExchange(ctx context.Context, in domain.ExchangeInput) (domain.Exchange, revision.Revision, error) {
	b := s.NewBatch()
	b.PutExchange(in)
	res, err := b.Commit(ctx)
	if err != nil {
		return domain.Exchange{}, revision.Revision{}, err
	}
	return res.Records[0].(domain.Exchange), res.Revision, nil
}

// SaveMethod creates or updates one method and records the change as a revision.
func (s *Service) SaveMethod(ctx context.Context, in MethodInput) (domain.Method, revision.Revision, error) {
	b := s.NewBatch()
	b.PutMethod(in)
	res, err := b.Commit(ctx)
	if err != nil {
		return domain.Method{}, revision.Revision{}, err
	}
	return res.Records[0].(domain.Method), res.Revision, nil
}

// GetActivity returns one activity.
func (s *Service) GetActivity(ctx context.Context, id int64) (domain.Activity, error) {
	return s.repo.GetActivity(ctx, id)
}

// ListActivities lists activities.
func (s *Service) ListActivities(ctx context.Context) ([]domain.Activity, error) {
	return s.repo.ListActivities(ctx)
}

// GetExchange returns one exchange.
func (s *Service) GetExchange(ctx context.Context, id int64) (domain.Exchange, error) {
	return s.repo.GetExchange(ctx, id)
}

// ListExchanges lists exchanges.
func (s *Service) ListExchanges(ctx context.Context) ([]domain.Exchange, error) {
	return s.repo.ListExchanges(ctx)
}

// GetMethod returns one method.
func (s *Service) GetMethod(ctx context.Context, id int64) (domain.Method, error) {
	return s.repo.GetMethod(ctx, id)
}

// ListMethods lists methods.
func (s *Service) ListMethods(ctx context.Context) ([]domain.Method, error) {
	return s.repo.ListMethods(ctx)
}

// Head returns the current head revision id, zero for an empty history.
func (s *Service) Head(ctx context.Context) (revision.ID, error) {
	return s.repo.Head(ctx, s.head)
}

// Revision returns one stored revision.
func (s *Service) Revision(ctx context.Context, id revision.ID) (revision.Revision, error) {
	return s.repo.GetRevision(ctx, id)
}

// Graph indexes the stored revision log under the current head.
func (s *Service) Graph(ctx context.Context) (*revision.Graph, error) {
	head, err := s.repo.Head(ctx, s.head)
	if err != nil {
		return nil, err
	}
	revs, err := s.repo.ListRevisions(ctx)
	if err != nil {
		return nil, err
	}
	return revision.NewGraph(head, revs)
}

// History walks the revision chain from the head towards the root.
// A positive limit stops the walk early.
func (s *Service) History(ctx context.Context, limit int) ([]revision.Revision, error) {
	graph, err := s.Graph(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]revision.Revision, 0)
	for rev, err := range graph.Walk() {
		if err != nil {
			return out, err
		}
		out = append(out, rev)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// commit stamps deltas with metadata and writes them together with records.
func (s *Service) commit(ctx context.Context, records []revision.Record, deltas []revision.Delta) (revision.Revision, error) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	head, err := s.repo.Head(ctx, s.head)
	if err != nil {
		return revision.Revision{}, err
	}
	meta := s.assembler.GenerateMetadata(s.metadataInput(ctx, head))
	rev := s.assembler.GenerateRevision(meta, deltas)
	if err := s.repo.CommitChangeSet(ctx, ChangeSet{
		Head:        s.head,
		Records:     records,
		Revision:    rev,
		CommittedAt: s.clock().UTC(),
	}); err != nil {
		s.logger.Error("revision commit failed", "revision", rev.ID(), "parent", head, "err", err)
		return revision.Revision{}, err
	}
	s.logger.Info("revision committed", "revision", rev.ID(), "parent", head, "deltas", len(deltas), "authors", meta.Authors)
	return rev, nil
}

// metadataInput builds metadata input from context provenance and the current head.
func (s *Service) metadataInput(ctx context.Context, head revision.ID) revision.MetadataInput {
	info, _ := RevisionInfoFromContext(ctx)
	in := revision.MetadataInput{
		Authors:     info.Authors,
		Title:       info.Title,
		Description: info.Description,
	}
	if in.Authors == "" {
		in.Authors = s.defaultAuthors
	}
	if head != 0 {
		in.Parent = &head
	}
	return in
}

// nopLogger discards service events.
type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
