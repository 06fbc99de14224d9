package app

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/hylla/lcarev/internal/domain"
	"github.com/hylla/lcarev/internal/revision"
)

// recordKey identifies one tracked record.
type recordKey struct {
	kind revision.Kind
	id   int64
}

// String renders the key as kind/id.
func (k recordKey) String() string {
	return fmt.Sprintf("%s/%d", k.kind, k.id)
}

// keyOf returns the key of a tracked record.
func keyOf(r revision.Record) recordKey {
	return recordKey{kind: revision.NormalizeKind(r.RecordKind()), id: r.RecordID()}
}

// compareKeys orders keys by kind, then id.
func compareKeys(a, b recordKey) int {
	if c := cmp.Compare(a.kind, b.kind); c != 0 {
		return c
	}
	return cmp.Compare(a.id, b.id)
}

// recordCodec converts one record kind between its stored, plain and rebuilt forms.
type recordCodec struct {
	toPlain   revision.Mapper
	fromPlain func(int64, revision.Plain) (revision.Record, error)
	load      func(context.Context, Repository, int64) (revision.Record, error)
}

// recordCodecs returns the codec for every tracked record kind.
func recordCodecs() map[revision.Kind]recordCodec {
	return map[revision.Kind]recordCodec{
		revision.KindActivity: {
			toPlain:   plainMapper(domain.ActivityPlain),
			fromPlain: inverseMapper(domain.ActivityFromPlain),
			load: func(ctx context.Context, repo Repository, id int64) (revision.Record, error) {
				a, err := repo.GetActivity(ctx, id)
				if err != nil {
					return nil, err
				}
				return a, nil
			},
		},
		revision.KindExchange: {
			toPlain:   plainMapper(domain.ExchangePlain),
			fromPlain: inverseMapper(domain.ExchangeFromPlain),
			load: func(ctx context.Context, repo Repository, id int64) (revision.Record, error) {
				e, err := repo.GetExchange(ctx, id)
				if err != nil {
					return nil, err
				}
				return e, nil
			},
		},
		revision.KindMethod: {
			toPlain:   plainMapper(domain.MethodPlain),
			fromPlain: inverseMapper(domain.MethodFromPlain),
			load: func(ctx context.Context, repo Repository, id int64) (revision.Record, error) {
				m, err := repo.GetMethod(ctx, id)
				if err != nil {
					return nil, err
				}
				return m, nil
			},
		},
	}
}

// Mappers returns the plain mapper registry for every tracked record kind.
func Mappers() map[revision.Kind]revision.Mapper {
	codecs := recordCodecs()
	out := make(map[revision.Kind]revision.Mapper, len(codecs))
	for kind, codec := range codecs {
		out[kind] = codec.toPlain
	}
	return out
}

// plainMapper adapts a typed mapper to the revision.Mapper signature.
func plainMapper[T revision.Record](fn func(T) revision.Plain) revision.Mapper {
	return func(r revision.Record) (revision.Plain, error) {
		rec, ok := r.(T)
		if !ok {
			var want T
			return nil, fmt.Errorf("%w: expected %T, got %T", revision.ErrTypeMismatch, want, r)
		}
		return fn(rec), nil
	}
}

// inverseMapper adapts a typed plain decoder to the record interface.
func inverseMapper[T revision.Record](fn func(int64, revision.Plain) (T, error)) func(int64, revision.Plain) (revision.Record, error) {
	return func(id int64, p revision.Plain) (revision.Record, error) {
		rec, err := fn(id, p)
		if err != nil {
			return nil, err
		}
		return rec, nil
	}
}

// sortedKeys returns unique keys in lock order.
func sortedKeys(keys []recordKey) []recordKey {
	out := slices.Clone(keys)
	slices.SortFunc(out, compareKeys)
	return slices.Compact(out)
}
