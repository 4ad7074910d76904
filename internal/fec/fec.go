// Package fec implements the optional Reed-Solomon forward error
// correction enrichment for file-transfer uploads: a sender may stripe
// chunks into data+parity shards so a receiver missing a few chunks can
// reconstruct them without a retransmit round trip.
package fec

import (
	"fmt"

	"github.com/klauspost/reedsolomon"
)

// Encoder produces parity shards for a fixed (k, r) stripe shape.
type Encoder struct {
	k, r int
	rs   reedsolomon.Encoder
}

// NewEncoder creates an encoder for k data shards and r parity shards.
func NewEncoder(k, r int) (*Encoder, error) {
	if k < 1 || k > 256 {
		return nil, fmt.Errorf("fec: data shards must be in [1,256], got %d", k)
	}
	if r < 1 || r > 256 {
		return nil, fmt.Errorf("fec: parity shards must be in [1,256], got %d", r)
	}
	rs, err := reedsolomon.New(k, r)
	if err != nil {
		return nil, fmt.Errorf("fec: creating reed-solomon encoder: %w", err)
	}
	return &Encoder{k: k, r: r, rs: rs}, nil
}

// Encode returns r parity shards for the given k data shards, which
// must all be the same length (short stripes must be zero-padded by the
// caller).
func (e *Encoder) Encode(dataShards [][]byte) ([][]byte, error) {
	if len(dataShards) != e.k {
		return nil, fmt.Errorf("fec: expected %d data shards, got %d", e.k, len(dataShards))
	}
	shardSize := 0
	if len(dataShards) > 0 {
		shardSize = len(dataShards[0])
		for i, s := range dataShards {
			if len(s) != shardSize {
				return nil, fmt.Errorf("fec: shard %d size %d, want %d", i, len(s), shardSize)
			}
		}
	}

	all := make([][]byte, e.k+e.r)
	copy(all[:e.k], dataShards)
	for i := e.k; i < len(all); i++ {
		all[i] = make([]byte, shardSize)
	}
	if err := e.rs.Encode(all); err != nil {
		return nil, fmt.Errorf("fec: encoding: %w", err)
	}
	return all[e.k:], nil
}

// Decoder reconstructs missing shards of a (k, r) stripe.
type Decoder struct {
	k, r int
	rs   reedsolomon.Encoder
}

// NewDecoder creates a decoder for the same (k, r) shape an Encoder used.
func NewDecoder(k, r int) (*Decoder, error) {
	if k < 1 || k > 256 {
		return nil, fmt.Errorf("fec: data shards must be in [1,256], got %d", k)
	}
	if r < 1 || r > 256 {
		return nil, fmt.Errorf("fec: parity shards must be in [1,256], got %d", r)
	}
	rs, err := reedsolomon.New(k, r)
	if err != nil {
		return nil, fmt.Errorf("fec: creating reed-solomon decoder: %w", err)
	}
	return &Decoder{k: k, r: r, rs: rs}, nil
}

// Reconstruct fills in nil entries of shards (length k+r, nil where a
// shard wasn't received) in place. It fails if more than r shards are
// missing.
func (d *Decoder) Reconstruct(shards [][]byte) error {
	if len(shards) != d.k+d.r {
		return fmt.Errorf("fec: expected %d shards (k=%d+r=%d), got %d", d.k+d.r, d.k, d.r, len(shards))
	}
	missing := 0
	for _, s := range shards {
		if s == nil {
			missing++
		}
	}
	if missing > d.r {
		return fmt.Errorf("fec: %d shards missing, can only recover %d", missing, d.r)
	}
	if missing == 0 {
		return nil
	}
	if err := d.rs.Reconstruct(shards); err != nil {
		return fmt.Errorf("fec: reconstructing: %w", err)
	}
	return nil
}
