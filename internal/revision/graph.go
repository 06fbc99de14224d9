package revision

import (
	"fmt"
	"iter"

	mapset "github.com/deckarep/golang-set/v2"
)

// Graph indexes a set of revisions for backward traversal from a head.
// Each revision has at most one parent, so the graph is an ancestry chain.
type Graph struct {
	head  ID
	index map[ID]Revision
}

// NewGraph indexes revisions. A zero head yields an empty walk.
func NewGraph(head ID, revisions []Revision) (*Graph, error) {
	index := make(map[ID]Revision, len(revisions))
	for _, rev := range revisions {
		id := rev.ID()
		if _, ok := index[id]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRevision, id)
		}
		index[id] = rev
	}
	if head != 0 {
		if _, ok := index[head]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownHead, head)
		}
	}
	return &Graph{head: head, index: index}, nil
}

// Head returns the traversal start.
func (g *Graph) Head() ID {
	return g.head
}

// Len returns the number of indexed revisions.
func (g *Graph) Len() int {
	return len(g.index)
}

// Get returns one indexed revision.
func (g *Graph) Get(id ID) (Revision, bool) {
	rev, ok := g.index[id]
	return rev, ok
}

// Walk yields revisions from head to root. Every call starts a fresh traversal.
// A broken parent link or a cycle is yielded as a final error.
func (g *Graph) Walk() iter.Seq2[Revision, error] {
	return func(yield func(Revision, error) bool) {
		seen := mapset.NewThreadUnsafeSet[ID]()
		next := g.head
		for next != 0 {
			if !seen.Add(next) {
				yield(Revision{}, fmt.Errorf("%w: revisits %s", ErrCycleDetected, next))
				return
			}
			rev, ok := g.index[next]
			if !ok {
				yield(Revision{}, fmt.Errorf("%w: missing parent %s", ErrBrokenHistory, next))
				return
			}
			if !yield(rev, nil) {
				return
			}
			next = rev.Metadata.ParentID()
		}
	}
}

// Ancestry collects a full walk. On failure it returns the revisions walked so far.
func (g *Graph) Ancestry() ([]Revision, error) {
	out := make([]Revision, 0, len(g.index))
	for rev, err := range g.Walk() {
		if err != nil {
			return out, err
		}
		out = append(out, rev)
	}
	return out, nil
}
