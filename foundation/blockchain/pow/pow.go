// Package pow implements the proof of work puzzle. A block header is hashed
// together with the puzzle complexity and a nonce, and the hex digest must
// sort below the target string.
package pow

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/ardanlabs/utxochain/foundation/blockchain/hashing"
)

// MaxNonce is the exclusive upper bound of the nonce space. It matches the
// largest integer a JSON number can carry without losing precision.
const MaxNonce uint64 = 1<<53 - 1

// DefaultBatchSize is the number of nonces tried between cancellation checks.
const DefaultBatchSize uint64 = 1000

// targetLength is the width of a hex encoded sha256 digest.
const targetLength = 64

// ErrNoSolution is returned when no nonce in the searched range produces a
// hash below the target.
var ErrNoSolution = errors.New("no solution found")

// Header holds the block fields bound into the puzzle.
type Header struct {
	PreviousBlockHash string `json:"previousBlockHash"`
	MerkleRoot        string `json:"merkleRoot"`
	Timestamp         int64  `json:"timestamp"`
}

// Solution is a nonce together with the hash it produces.
type Solution struct {
	Nonce uint64 `json:"nonce"`
	Hash  string `json:"hash"`
}

// ProofOfWork represents the puzzle for a given complexity.
type ProofOfWork struct {
	complexity int
	target     string
}

// New constructs a puzzle. The target is a string of 64 zeros with a single
// one at the complexity position. A complexity outside [0, 64) produces a
// target no hash can sort below.
func New(complexity int) ProofOfWork {
	target := []byte(strings.Repeat("0", targetLength))
	if complexity >= 0 && complexity < targetLength {
		target[complexity] = '1'
	}

	return ProofOfWork{
		complexity: complexity,
		target:     string(target),
	}
}

// Complexity returns the complexity the puzzle was constructed with.
func (p ProofOfWork) Complexity() int {
	return p.complexity
}

// Target returns the target string hashes are compared against.
func (p ProofOfWork) Target() string {
	return p.target
}

// Meets reports whether the hash sorts below the target.
func (p ProofOfWork) Meets(hash string) bool {
	return hash < p.target
}

// Hash returns the double sha256 of the JSON array
// [previousBlockHash, merkleRoot, timestamp, complexity, nonce].
func (p ProofOfWork) Hash(h Header, nonce uint64) string {
	return hashing.Sha256x2(p.payload(p.prefix(h), nonce))
}

// Validate recomputes the hash for the nonce and checks it against the target.
func (p ProofOfWork) Validate(h Header, nonce uint64) bool {
	return p.Meets(p.Hash(h, nonce))
}

// Calculate searches the whole nonce space starting at zero.
func (p ProofOfWork) Calculate(ctx context.Context, h Header) (Solution, error) {
	return p.Search(ctx, h, 0, MaxNonce, DefaultBatchSize)
}

// Solve implements the block solver contract using a single goroutine.
func (p ProofOfWork) Solve(ctx context.Context, h Header) (Solution, error) {
	return p.Calculate(ctx, h)
}

// Search tries every nonce in [from, to) and returns the first solution. The
// context is checked every batch nonces. On failure the returned Solution
// carries the first nonce that was not tried and an empty hash.
func (p ProofOfWork) Search(ctx context.Context, h Header, from uint64, to uint64, batch uint64) (Solution, error) {
	if batch == 0 {
		batch = DefaultBatchSize
	}

	prefix := p.prefix(h)

	var attempts uint64
	for nonce := from; nonce < to; nonce++ {
		if attempts%batch == 0 {
			if err := ctx.Err(); err != nil {
				return Solution{Nonce: nonce}, err
			}
		}
		attempts++

		hash := hashing.Sha256x2(p.payload(prefix, nonce))
		if p.Meets(hash) {
			return Solution{Nonce: nonce, Hash: hash}, nil
		}
	}

	return Solution{Nonce: to}, ErrNoSolution
}

// prefix renders everything in the puzzle input except the nonce. The result
// ends with a comma so the nonce and closing bracket can be appended.
func (p ProofOfWork) prefix(h Header) []byte {
	data, _ := json.Marshal([]any{h.PreviousBlockHash, h.MerkleRoot, h.Timestamp, p.complexity})
	data[len(data)-1] = ','

	return data
}

func (p ProofOfWork) payload(prefix []byte, nonce uint64) []byte {
	data := make([]byte, 0, len(prefix)+21)
	data = append(data, prefix...)
	data = strconv.AppendUint(data, nonce, 10)

	return append(data, ']')
}
