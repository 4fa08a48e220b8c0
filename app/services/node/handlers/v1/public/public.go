// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ardanlabs/utxochain/business/web/errs"
	"github.com/ardanlabs/utxochain/foundation/blockchain/address"
	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/state"
	"github.com/ardanlabs/utxochain/foundation/events"
	"github.com/ardanlabs/utxochain/foundation/validate"
	"github.com/ardanlabs/utxochain/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers manages the set of ledger endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}

		case <-ctx.Done():
			return nil
		}
	}
}

// Send pays an amount between two addresses and mines the payment into a
// new block.
func (h Handlers) Send(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var req send
	if err := web.Decode(r, &req); err != nil {
		if validate.IsFieldErrors(err) {
			return err
		}
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	h.Log.Infow("send", "traceid", v.TraceID, "from", req.From, "to", req.To, "amount", req.Amount)

	blk, err := h.State.Send(ctx, req.From, req.To, req.Amount)
	if err != nil {
		return trusted(err)
	}

	bal, err := h.State.QueryBalance(req.From)
	if err != nil {
		return err
	}

	resp := mined{
		Block:   blk,
		Balance: bal,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Blocks returns the chain from the tip back to the genesis block.
func (h Handlers) Blocks(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	dbBlocks, err := h.State.QueryBlocks(ctx)
	if err != nil {
		return err
	}

	blocks := make([]block, len(dbBlocks))
	for i, blk := range dbBlocks {
		blocks[i] = block{
			Block: blk,
			Valid: h.State.ValidateBlock(blk) == nil,
		}
	}

	return web.Respond(ctx, w, blocks, http.StatusOK)
}

// Transaction returns the transaction for the specified id.
func (h Handlers) Transaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	tx, err := h.State.QueryTransaction(web.Param(r, "id"))
	if err != nil {
		return trusted(err)
	}

	return web.Respond(ctx, w, tx, http.StatusOK)
}

// Balance returns the balance of the specified address.
func (h Handlers) Balance(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	addr := web.Param(r, "address")

	bal, err := h.State.QueryBalance(addr)
	if err != nil {
		return trusted(err)
	}

	resp := balance{
		Address: addr,
		Balance: bal,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// UnspentCount returns the number of transactions holding unspent outputs.
func (h Handlers) UnspentCount(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	n, err := h.State.QueryUnspentCount()
	if err != nil {
		return err
	}

	return web.Respond(ctx, w, unspent{Transactions: n}, http.StatusOK)
}

// Reindex rebuilds the unspent output index from the chain.
func (h Handlers) Reindex(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	n, err := h.State.Reindex()
	if err != nil {
		return err
	}

	return web.Respond(ctx, w, unspent{Transactions: n}, http.StatusOK)
}

// Wallets returns the addresses of the wallets the node holds keys for.
func (h Handlers) Wallets(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, wallets{Addresses: h.State.QueryAddresses()}, http.StatusOK)
}

// CreateWallet generates a new key pair on the node.
func (h Handlers) CreateWallet(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	addr, err := h.State.CreateWallet()
	if err != nil {
		return err
	}

	resp := struct {
		Address string `json:"address"`
	}{
		Address: addr,
	}

	return web.Respond(ctx, w, resp, http.StatusCreated)
}

// trusted maps the ledger errors a client can cause to a status code.
func trusted(err error) error {
	switch {
	case errors.Is(err, database.ErrNotFound):
		return errs.NewTrusted(err, http.StatusNotFound)

	case errors.Is(err, database.ErrInsufficientFunds),
		errors.Is(err, database.ErrInvalidAmount),
		errors.Is(err, database.ErrInvalidTransaction),
		errors.Is(err, address.ErrInvalidAddress):
		return errs.NewTrusted(err, http.StatusBadRequest)

	case errors.Is(err, database.ErrAlreadyExists):
		return errs.NewTrusted(err, http.StatusConflict)
	}

	return err
}
