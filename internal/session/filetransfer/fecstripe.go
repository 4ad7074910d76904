package filetransfer

import (
	"fmt"

	"github.com/kerrnet/kerr/internal/fec"
	"github.com/kerrnet/kerr/internal/wire"
)

// stripeEncoder buffers a sender's data chunks into fixed-size, k-wide
// stripes and produces r parity shards per stripe, the SPEC_FULL.md FEC
// enrichment of §4.6. Shards are zero-padded to chunkSize so the
// reedsolomon encoder sees uniform shard sizes regardless of the final,
// possibly short, chunk of a file.
type stripeEncoder struct {
	enc         *fec.Encoder
	k           int
	chunkSize   int
	stripeStart uint64
	shards      [][]byte
	filled      int
}

func newStripeEncoder(k, r, chunkSize int) (*stripeEncoder, error) {
	enc, err := fec.NewEncoder(k, r)
	if err != nil {
		return nil, err
	}
	return &stripeEncoder{enc: enc, k: k, chunkSize: chunkSize}, nil
}

// add buffers one data chunk. When the stripe reaches k chunks, or flush
// is set (the file's final, possibly partial, stripe), it returns the
// stripe's parity shards and the seq its first chunk carried.
func (s *stripeEncoder) add(seq uint64, data []byte, flush bool) (parity [][]byte, stripeStart uint64, ready bool, err error) {
	stripeStart = (seq / uint64(s.k)) * uint64(s.k)
	if s.shards == nil || stripeStart != s.stripeStart {
		s.stripeStart = stripeStart
		s.shards = make([][]byte, s.k)
		s.filled = 0
	}
	padded := make([]byte, s.chunkSize)
	copy(padded, data)
	idx := int(seq - s.stripeStart)
	if idx < 0 || idx >= s.k {
		return nil, s.stripeStart, false, fmt.Errorf("fec: seq %d outside stripe starting %d", seq, s.stripeStart)
	}
	s.shards[idx] = padded
	s.filled++
	if s.filled < s.k && !flush {
		return nil, 0, false, nil
	}
	for i, sh := range s.shards {
		if sh == nil {
			s.shards[i] = make([]byte, s.chunkSize)
		}
	}
	parity, err = s.enc.Encode(s.shards)
	stripeStart = s.stripeStart
	s.shards = nil
	s.filled = 0
	return parity, stripeStart, err == nil, err
}

// stripeValidator mirrors stripeEncoder on the receiving side: it
// buffers the zero-padded copy of each data chunk it also writes to
// disk, and once a stripe's parity shards have all arrived, runs
// fec.Decoder.Reconstruct to fill in any data shard that is missing. It
// does not check the parity against the data: Reconstruct is a no-op
// whenever every data shard already arrived,
// which is always true over the reliable, ordered QUIC stream this
// session runs on; it is still the mechanism that would recover a
// dropped data shard on a lossy direct-UDP transport.
type stripeValidator struct {
	dec         *fec.Decoder
	k, r        int
	chunkSize   int
	stripeStart uint64
	shards      [][]byte
	gotParity   int
}

func newStripeValidator(k, r, chunkSize int) (*stripeValidator, error) {
	dec, err := fec.NewDecoder(k, r)
	if err != nil {
		return nil, err
	}
	return &stripeValidator{dec: dec, k: k, r: r, chunkSize: chunkSize}, nil
}

func (v *stripeValidator) addData(seq uint64, data []byte) {
	stripeStart := (seq / uint64(v.k)) * uint64(v.k)
	if v.shards == nil || stripeStart != v.stripeStart {
		v.stripeStart = stripeStart
		v.shards = make([][]byte, v.k+v.r)
		v.gotParity = 0
	}
	padded := make([]byte, v.chunkSize)
	copy(padded, data)
	v.shards[seq-stripeStart] = padded
}

// addParity records a parity shard and, once the stripe's full parity
// set is in, reconstructs any missing data shard.
func (v *stripeValidator) addParity(chunk *wire.FECChunk) error {
	if v.shards == nil || chunk.StripeStart != v.stripeStart {
		return fmt.Errorf("fec: parity for stripe %d, have stripe %d", chunk.StripeStart, v.stripeStart)
	}
	v.shards[v.k+int(chunk.Index)] = chunk.Bytes
	v.gotParity++
	if v.gotParity == v.r {
		defer func() { v.shards = nil }()
		return v.dec.Reconstruct(v.shards)
	}
	return nil
}
