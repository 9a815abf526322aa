package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// IsEmpty checks if the hash is empty
func (h Hash) IsEmpty() bool {
	return h == ""
}

// Short returns the first 12 hex characters, for logs
func (h Hash) Short() string {
	if len(h) <= 12 {
		return string(h)
	}
	return string(h[:12])
}

// Domain-specific hash types
type (
	DatasetHash Hash
	ConfigHash  Hash
)

func (h DatasetHash) String() string { return Hash(h).String() }
func (h ConfigHash) String() string  { return Hash(h).String() }

// DatasetHasher accumulates records into a DatasetHash. Float values are
// written through their IEEE bits so formatting never changes the hash.
type DatasetHasher struct {
	b strings.Builder
}

func (d *DatasetHasher) WriteString(s string) {
	d.b.WriteString(s)
	d.b.WriteByte(0)
}

func (d *DatasetHasher) WriteFloat(f float64) {
	d.b.WriteString(fmt.Sprintf("%016x", math.Float64bits(f)))
}

func (d *DatasetHasher) Sum() DatasetHash {
	return DatasetHash(NewHash([]byte(d.b.String())))
}
