package id

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"math"
	"sync"
	"time"
)

// Size is the encoded length of an ID.
const Size = 16

// ErrInvalidLength is returned by FromBytes for input that is not Size bytes.
var ErrInvalidLength = errors.New("id: invalid length")

// ID is a 128-bit, lexicographically sortable identifier encoded as 16 bytes
// big-endian: [8 bytes ms_timestamp][8 bytes sequence].
type ID [Size]byte

// FromBytes decodes an ID previously produced by Bytes.
func FromBytes(b []byte) (ID, error) {
	var i ID
	if len(b) != Size {
		return i, ErrInvalidLength
	}
	copy(i[:], b)
	return i, nil
}

// Bytes returns the raw 16-byte representation.
func (i ID) Bytes() []byte { b := make([]byte, Size); copy(b, i[:]); return b }

// String returns a hex string.
func (i ID) String() string { return hex.EncodeToString(i[:]) }

// Millis is the timestamp half of the ID.
func (i ID) Millis() int64 { return int64(binary.BigEndian.Uint64(i[0:8])) }

// Seq is the sequence half of the ID.
func (i ID) Seq() uint64 { return binary.BigEndian.Uint64(i[8:16]) }

// Time converts Millis to a time.Time.
func (i ID) Time() time.Time { return time.UnixMilli(i.Millis()) }

// Compare returns -1, 0, 1 based on lexical comparison.
func (i ID) Compare(other ID) int {
	for idx := 0; idx < Size; idx++ {
		if i[idx] < other[idx] {
			return -1
		}
		if i[idx] > other[idx] {
			return 1
		}
	}
	return 0
}

// Generator hands out strictly increasing IDs. It is safe for concurrent use.
type Generator struct {
	mu       sync.Mutex
	lastMs   int64
	sequence uint64
	// Now is consulted by Next. Nil means time.Now.
	Now func() time.Time
}

// NewGenerator creates a new Generator.
func NewGenerator() *Generator { return &Generator{} }

// Observe advances the generator past last, so IDs issued afterwards sort
// after it. Used to resume from a persisted key.
func (g *Generator) Observe(last ID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if last.Millis() > g.lastMs || (last.Millis() == g.lastMs && last.Seq() > g.sequence) {
		g.lastMs = last.Millis()
		g.sequence = last.Seq()
	}
}

// Next returns an ID for the generator's current time.
func (g *Generator) Next() ID {
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	return g.At(now())
}

// At returns an ID stamped with t. If t is older than the last issued ID,
// the last millisecond is reused with a higher sequence. If the sequence
// would overflow, the millisecond is bumped instead.
func (g *Generator) At(t time.Time) ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := t.UnixMilli()
	if ms < g.lastMs {
		ms = g.lastMs
	}
	switch {
	case ms > g.lastMs:
		g.sequence = 0
	case g.sequence == math.MaxUint64:
		ms++
		g.sequence = 0
	default:
		g.sequence++
	}
	g.lastMs = ms
	return makeID(ms, g.sequence)
}

func makeID(ms int64, seq uint64) ID {
	var id ID
	binary.BigEndian.PutUint64(id[0:8], uint64(ms))
	binary.BigEndian.PutUint64(id[8:16], seq)
	return id
}
