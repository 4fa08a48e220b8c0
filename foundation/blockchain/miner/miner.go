// Package miner races a pool of workers over disjoint nonce ranges to solve
// the proof of work for a block. Workers run as goroutines or as child
// processes that exchange JSON messages over stdin and stdout.
package miner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ardanlabs/utxochain/foundation/blockchain/pow"
)

// Set of modes a miner can run its workers in.
const (
	ModeThread  = "thread"
	ModeProcess = "process"
)

// Set of error variables for mining sessions.
var (
	ErrBusy        = errors.New("mining session already in progress")
	ErrInvalidMode = errors.New("invalid miner mode")
)

// EventHandler defines a function that is called when events occur in the
// processing of a mining session.
type EventHandler func(v string, args ...any)

// State represents where the miner is in a session.
type State int32

// Set of session states. A session moves from Idle to Dispatched, then to
// Winner or Cancelled, and back to Idle.
const (
	StateIdle State = iota
	StateDispatched
	StateWinner
	StateCancelled
)

var stateNames = map[State]string{
	StateIdle:       "idle",
	StateDispatched: "dispatched",
	StateWinner:     "winner",
	StateCancelled:  "cancelled",
}

// String implements the fmt.Stringer interface.
func (s State) String() string {
	return stateNames[s]
}

// HashRate is the aggregate speed of the workers for one session.
type HashRate struct {
	Workers         int
	Hashes          uint64
	HashesPerSecond float64
	Elapsed         time.Duration
}

// Range is a half open interval of nonces assigned to one worker.
type Range struct {
	From uint64
	To   uint64
}

// =============================================================================

// Config represents the configuration for a miner.
type Config struct {
	Workers       int
	Mode          string
	Complexity    int
	MaxNonce      uint64
	BatchSize     uint64
	WorkerCommand []string
	WorkerEnv     []string
	EvHandler     EventHandler
	OnHashRate    func(HashRate)
}

// Miner coordinates the workers. It runs one session at a time.
type Miner struct {
	cfg   Config
	pow   pow.ProofOfWork
	state atomic.Int32
}

// New constructs a miner. Zero values fall back to one worker per CPU, the
// full nonce space, and the default batch size.
func New(cfg Config) (*Miner, error) {
	switch cfg.Mode {
	case "":
		cfg.Mode = ModeThread
	case ModeThread:
	case ModeProcess:
		if len(cfg.WorkerCommand) == 0 {
			return nil, errors.New("process mode requires a worker command")
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, cfg.Mode)
	}

	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}

	if cfg.MaxNonce == 0 {
		cfg.MaxNonce = pow.MaxNonce
	}

	if cfg.BatchSize == 0 {
		cfg.BatchSize = pow.DefaultBatchSize
	}

	if uint64(cfg.Workers) > cfg.MaxNonce {
		return nil, fmt.Errorf("%d workers can't share %d nonces", cfg.Workers, cfg.MaxNonce)
	}

	if cfg.EvHandler == nil {
		cfg.EvHandler = func(v string, args ...any) {}
	}

	m := Miner{
		cfg: cfg,
		pow: pow.New(cfg.Complexity),
	}

	return &m, nil
}

// State returns the current session state.
func (m *Miner) State() State {
	return State(m.state.Load())
}

// Solve implements the ledger's solver contract.
func (m *Miner) Solve(ctx context.Context, h pow.Header) (pow.Solution, error) {
	return m.Mine(ctx, h)
}

// result is what a worker hands back to the coordinator.
type result struct {
	id      int
	rng     Range
	report  Report
	err     error
	elapsed time.Duration
}

// Mine dispatches the header to every worker and returns the first solution.
// The other workers are stopped and every worker is waited on before Mine
// returns. If every range is exhausted pow.ErrNoSolution is returned.
func (m *Miner) Mine(ctx context.Context, h pow.Header) (pow.Solution, error) {
	if !m.state.CompareAndSwap(int32(StateIdle), int32(StateDispatched)) {
		return pow.Solution{}, ErrBusy
	}
	defer m.state.Store(int32(StateIdle))

	ranges := Partition(m.cfg.MaxNonce, m.cfg.Workers)

	m.cfg.EvHandler("miner: Mine: MINING: started: mode[%s]: workers[%d]: complexity[%d]", m.cfg.Mode, len(ranges), m.cfg.Complexity)
	defer m.cfg.EvHandler("miner: Mine: MINING: completed")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan result, len(ranges))

	var wg sync.WaitGroup
	wg.Add(len(ranges))

	for i, rng := range ranges {
		d := Dispatch{
			Block:      h,
			Complexity: m.cfg.Complexity,
			NonceFrom:  rng.From,
			NonceTo:    rng.To,
			BatchSize:  m.cfg.BatchSize,
		}

		go func(id int, rng Range, d Dispatch) {
			defer wg.Done()

			start := time.Now()
			rep, err := m.run(ctx, id, d)
			results <- result{id: id, rng: rng, report: rep, err: err, elapsed: time.Since(start)}
		}(i, rng, d)
	}

	var winner *pow.Solution
	var workerErr error
	var rate HashRate

	for range ranges {
		r := <-results

		// A solution reports the nonce it hashed. Otherwise the report holds
		// the next nonce the worker would have tried.
		hashes := r.report.Nonce - r.rng.From
		if r.err == nil && r.report.Hash != nil {
			hashes++
		}

		rate.Workers++
		rate.Hashes += hashes
		if secs := r.elapsed.Seconds(); secs > 0 {
			rate.HashesPerSecond += float64(hashes) / secs
		}
		rate.Elapsed = max(rate.Elapsed, r.elapsed)

		switch {
		case r.err != nil:
			m.cfg.EvHandler("miner: Mine: worker[%d]: ERROR: %s", r.id, r.err)
			if workerErr == nil {
				workerErr = r.err
			}

		case r.report.Hash == nil:
			m.cfg.EvHandler("miner: Mine: worker[%d]: no solution: nonce[%d]", r.id, r.report.Nonce)

		case winner != nil:
			m.cfg.EvHandler("miner: Mine: worker[%d]: late solution discarded: nonce[%d]", r.id, r.report.Nonce)

		case !m.pow.Validate(h, r.report.Nonce) || m.pow.Hash(h, r.report.Nonce) != *r.report.Hash:
			m.cfg.EvHandler("miner: Mine: worker[%d]: ERROR: invalid solution: nonce[%d]", r.id, r.report.Nonce)
			if workerErr == nil {
				workerErr = fmt.Errorf("worker %d reported an invalid solution for nonce %d", r.id, r.report.Nonce)
			}

		default:
			winner = &pow.Solution{Nonce: r.report.Nonce, Hash: *r.report.Hash}
			m.state.Store(int32(StateWinner))
			m.cfg.EvHandler("miner: Mine: MINING: SOLVED: worker[%d]: nonce[%d]: hash[%s]", r.id, winner.Nonce, winner.Hash)
			cancel()
		}
	}

	wg.Wait()

	m.cfg.EvHandler("miner: Mine: hash rate[%.0f H/s]: hashes[%d]: workers[%d]", rate.HashesPerSecond, rate.Hashes, rate.Workers)
	if m.cfg.OnHashRate != nil {
		m.cfg.OnHashRate(rate)
	}

	if winner != nil {
		return *winner, nil
	}

	m.state.Store(int32(StateCancelled))

	if err := ctx.Err(); err != nil {
		return pow.Solution{}, err
	}

	if workerErr != nil {
		return pow.Solution{}, workerErr
	}

	return pow.Solution{}, pow.ErrNoSolution
}

// run executes one worker in the configured mode.
func (m *Miner) run(ctx context.Context, id int, d Dispatch) (Report, error) {
	if m.cfg.Mode == ModeProcess {
		return runProcess(ctx, m.cfg.WorkerCommand, append(os.Environ(), m.cfg.WorkerEnv...), d)
	}

	return search(ctx, d), nil
}

// Partition splits [0, limit) into n contiguous ranges. The last range
// absorbs the remainder.
func Partition(limit uint64, n int) []Range {
	step := limit / uint64(n)

	ranges := make([]Range, n)
	for i := range ranges {
		ranges[i] = Range{From: step * uint64(i), To: step * uint64(i+1)}
	}
	ranges[n-1].To = limit

	return ranges
}
