package miner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/ardanlabs/utxochain/foundation/blockchain/pow"
)

// StopSignal is sent to a worker, encoded as a JSON string, to end its
// search early.
const StopSignal = "stop"

// stopTimeout bounds how long a stopped child process has to report before
// it is killed.
const stopTimeout = 5 * time.Second

// Dispatch is the message handing a nonce range to a worker.
type Dispatch struct {
	Block      pow.Header `json:"block"`
	Complexity int        `json:"complexity"`
	NonceFrom  uint64     `json:"nonceFrom"`
	NonceTo    uint64     `json:"nonceTo"`
	BatchSize  uint64     `json:"batchSize,omitempty"`
}

// Report is the message a worker sends back. A nil hash means the range was
// exhausted or the worker was stopped, and the nonce is how far it got.
type Report struct {
	Nonce uint64  `json:"nonce"`
	Hash  *string `json:"hash"`
}

// search runs the proof of work over the dispatched range.
func search(ctx context.Context, d Dispatch) Report {
	sol, err := pow.New(d.Complexity).Search(ctx, d.Block, d.NonceFrom, d.NonceTo, d.BatchSize)
	if err != nil {
		return Report{Nonce: sol.Nonce}
	}

	return Report{Nonce: sol.Nonce, Hash: &sol.Hash}
}

// =============================================================================

// ServeWorker is the child process side of the worker protocol. It reads
// dispatch messages from r, searches each range while watching for the stop
// signal, and writes one report per dispatch to w. It returns nil once r is
// closed.
func ServeWorker(ctx context.Context, r io.Reader, w io.Writer) error {
	msgs := make(chan json.RawMessage)
	readErr := make(chan error, 1)

	go func() {
		defer close(msgs)

		dec := json.NewDecoder(r)
		for {
			var raw json.RawMessage
			if err := dec.Decode(&raw); err != nil {
				readErr <- err
				return
			}

			select {
			case msgs <- raw:
			case <-ctx.Done():
				return
			}
		}
	}()

	enc := json.NewEncoder(w)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case raw, ok := <-msgs:
			if !ok {
				return closeErr(readErr)
			}

			if isStop(raw) {
				continue
			}

			var d Dispatch
			if err := json.Unmarshal(raw, &d); err != nil {
				return fmt.Errorf("decode dispatch: %w", err)
			}

			rep, open := serveDispatch(ctx, d, msgs)
			if err := enc.Encode(rep); err != nil {
				return fmt.Errorf("encode report: %w", err)
			}

			if !open {
				return closeErr(readErr)
			}
		}
	}
}

// serveDispatch runs one search and cancels it when the stop signal arrives
// or the input is closed. It reports whether the input is still open.
func serveDispatch(ctx context.Context, d Dispatch, msgs <-chan json.RawMessage) (Report, bool) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan Report, 1)
	go func() {
		done <- search(ctx, d)
	}()

	for {
		select {
		case rep := <-done:
			return rep, true

		case raw, ok := <-msgs:
			if !ok {
				cancel()
				return <-done, false
			}

			if isStop(raw) {
				cancel()
				return <-done, true
			}
		}
	}
}

func isStop(raw json.RawMessage) bool {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return false
	}
	return s == StopSignal
}

func closeErr(readErr <-chan error) error {
	select {
	case err := <-readErr:
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("read dispatch: %w", err)
	default:
		return nil
	}
}

// =============================================================================

// runProcess starts a child worker, dispatches the range, and waits for its
// report. When ctx is cancelled the child is sent the stop signal and killed
// if it does not report in time.
func runProcess(ctx context.Context, command []string, env []string, d Dispatch) (Report, error) {
	cmd := exec.Command(command[0], command[1:]...)
	cmd.Env = env
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return Report{Nonce: d.NonceFrom}, fmt.Errorf("stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Report{Nonce: d.NonceFrom}, fmt.Errorf("stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return Report{Nonce: d.NonceFrom}, fmt.Errorf("start worker: %w", err)
	}

	type reply struct {
		report Report
		err    error
	}
	replies := make(chan reply, 1)

	go func() {
		var rep Report
		err := json.NewDecoder(stdout).Decode(&rep)
		replies <- reply{report: rep, err: err}
	}()

	enc := json.NewEncoder(stdin)
	if err := enc.Encode(d); err != nil {
		cmd.Process.Kill()
		cmd.Wait()
		return Report{Nonce: d.NonceFrom}, fmt.Errorf("dispatch: %w", err)
	}

	var r reply
	select {
	case r = <-replies:

	case <-ctx.Done():
		enc.Encode(StopSignal)

		select {
		case r = <-replies:
		case <-time.After(stopTimeout):
			cmd.Process.Kill()
			r = reply{report: Report{Nonce: d.NonceFrom}, err: errors.New("worker did not stop in time")}
		}
	}

	// Closing stdin ends the child's read loop so it exits on its own.
	stdin.Close()
	waitErr := cmd.Wait()

	if r.err != nil {
		if waitErr != nil {
			return Report{Nonce: d.NonceFrom}, fmt.Errorf("worker: %w: %w", r.err, waitErr)
		}
		return Report{Nonce: d.NonceFrom}, fmt.Errorf("worker: %w", r.err)
	}

	return r.report, nil
}
