package revision

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
)

// ID identifies one revision. Larger ids were generated later with high probability.
type ID int64

// String renders the id in base 10.
func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseID parses a base-10 revision id.
func ParseID(raw string) (ID, error) {
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid revision id %q", raw)
	}
	return ID(v), nil
}

// MaxNode is the largest node discriminator a generator accepts (10 node bits).
const MaxNode = 1<<10 - 1

// IDGenerator allocates revision ids.
type IDGenerator interface {
	Next() ID
}

// Generator produces time-ordered snowflake ids: milliseconds since the epoch,
// then the node discriminator, then a per-millisecond sequence.
type Generator struct {
	node *snowflake.Node
	last atomic.Int64
}

// NewGenerator constructs a generator for one node discriminator in [0, MaxNode].
func NewGenerator(node int64) (*Generator, error) {
	n, err := snowflake.NewNode(node)
	if err != nil {
		return nil, fmt.Errorf("create id node %d: %w", node, err)
	}
	return &Generator{node: n}, nil
}

// NewRandomGenerator picks the node discriminator from a random UUID.
func NewRandomGenerator() (*Generator, error) {
	return NewGenerator(RandomNode())
}

// RandomNode returns a node discriminator derived from a random UUID.
func RandomNode() int64 {
	u := uuid.New()
	return int64(binary.BigEndian.Uint16(u[14:]) & MaxNode)
}

// Next returns an id strictly greater than every id this generator emitted before.
func (g *Generator) Next() ID {
	for {
		candidate := g.node.Generate().Int64()
		prev := g.last.Load()
		if candidate <= prev {
			// Clock went backwards; draw again until time catches up.
			continue
		}
		if g.last.CompareAndSwap(prev, candidate) {
			return ID(candidate)
		}
	}
}
