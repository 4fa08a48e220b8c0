package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ardanlabs/utxochain/app/services/node/handlers"
	"github.com/ardanlabs/utxochain/business/web/errs"
	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/state"
	"github.com/ardanlabs/utxochain/foundation/blockchain/storage/memory"
	"github.com/ardanlabs/utxochain/foundation/blockchain/wallet"
	"github.com/ardanlabs/utxochain/foundation/events"
	"go.uber.org/zap"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func newApp(t *testing.T) (http.Handler, string, string) {
	folder := filepath.Join(t.TempDir(), "wallets")

	w, err := wallet.Load(folder)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to load wallets: %v", failed, err)
	}

	addrA, err := w.Create()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to create a wallet: %v", failed, err)
	}
	addrB, err := w.Create()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to create a wallet: %v", failed, err)
	}

	cfg := state.Config{
		Ledger:       memory.New(),
		Index:        memory.New(),
		WalletFolder: folder,
		Complexity:   1,
	}

	st, err := state.Create(context.Background(), cfg, addrA)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to create the ledger: %v", failed, err)
	}
	t.Cleanup(func() { st.Shutdown() })

	mux := handlers.PublicMux(handlers.MuxConfig{
		Shutdown: make(chan os.Signal, 1),
		Log:      zap.NewNop().Sugar(),
		State:    st,
		Evts:     events.New(),
	})

	return mux, addrA, addrB
}

func call(app http.Handler, method string, path string, body string, v any) int {
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	app.ServeHTTP(w, r)

	if v != nil {
		json.NewDecoder(w.Body).Decode(v)
	}

	return w.Code
}

func TestRoutes(t *testing.T) {
	app, addrA, addrB := newApp(t)

	t.Log("Given the need to serve the ledger over http.")
	{
		t.Logf("\tTest 0:\tWhen asking for a balance.")
		{
			var resp struct {
				Address string `json:"address"`
				Balance uint64 `json:"balance"`
			}
			if code := call(app, http.MethodGet, "/v1/balance/"+addrA, "", &resp); code != http.StatusOK {
				t.Fatalf("\t%s\tTest 0:\tShould get a 200: got %d", failed, code)
			}
			if resp.Balance != database.DefaultSubsidy {
				t.Fatalf("\t%s\tTest 0:\tShould get the genesis subsidy: got %d", failed, resp.Balance)
			}
			t.Logf("\t%s\tTest 0:\tShould get the genesis subsidy.", success)

			var er errs.Response
			if code := call(app, http.MethodGet, "/v1/balance/bogus", "", &er); code != http.StatusBadRequest {
				t.Fatalf("\t%s\tTest 0:\tShould get a 400 for a bad address: got %d", failed, code)
			}
			t.Logf("\t%s\tTest 0:\tShould get a 400 for a bad address.", success)
		}

		t.Logf("\tTest 1:\tWhen sending a payment.")
		{
			var er errs.Response
			body := `{"from":"` + addrA + `","to":"` + addrB + `","amount":0}`
			if code := call(app, http.MethodPost, "/v1/tx/send", body, &er); code != http.StatusBadRequest {
				t.Fatalf("\t%s\tTest 1:\tShould reject a zero amount: got %d", failed, code)
			}
			if _, exists := er.Fields["amount"]; !exists {
				t.Fatalf("\t%s\tTest 1:\tShould name the failing field: %v", failed, er.Fields)
			}
			t.Logf("\t%s\tTest 1:\tShould reject a zero amount naming the field.", success)

			body = `{"from":"` + addrA + `","to":"` + addrB + `","amount":40}`
			if code := call(app, http.MethodPost, "/v1/tx/send", body, nil); code != http.StatusBadRequest {
				t.Fatalf("\t%s\tTest 1:\tShould reject an overspend: got %d", failed, code)
			}
			t.Logf("\t%s\tTest 1:\tShould reject an overspend.", success)

			var resp struct {
				Block   database.Block `json:"block"`
				Balance uint64         `json:"balance"`
			}
			body = `{"from":"` + addrA + `","to":"` + addrB + `","amount":4}`
			if code := call(app, http.MethodPost, "/v1/tx/send", body, &resp); code != http.StatusOK {
				t.Fatalf("\t%s\tTest 1:\tShould accept the payment: got %d", failed, code)
			}
			if resp.Balance != 2*database.DefaultSubsidy-4 {
				t.Fatalf("\t%s\tTest 1:\tShould report the sender balance: got %d", failed, resp.Balance)
			}
			t.Logf("\t%s\tTest 1:\tShould accept the payment.", success)

			var tx database.Transaction
			id := resp.Block.Transactions[1].ID
			if code := call(app, http.MethodGet, "/v1/tx/"+id, "", &tx); code != http.StatusOK || tx.ID != id {
				t.Fatalf("\t%s\tTest 1:\tShould find the payment by id: got %d", failed, code)
			}
			if code := call(app, http.MethodGet, "/v1/tx/unknown", "", nil); code != http.StatusNotFound {
				t.Fatalf("\t%s\tTest 1:\tShould get a 404 for an unknown id: got %d", failed, code)
			}
			t.Logf("\t%s\tTest 1:\tShould find the payment by id.", success)
		}

		t.Logf("\tTest 2:\tWhen reading the chain.")
		{
			var blocks []struct {
				Hash  string `json:"hash"`
				Valid bool   `json:"valid"`
			}
			if code := call(app, http.MethodGet, "/v1/blocks", "", &blocks); code != http.StatusOK {
				t.Fatalf("\t%s\tTest 2:\tShould get a 200: got %d", failed, code)
			}
			if len(blocks) != 2 || !blocks[0].Valid || !blocks[1].Valid {
				t.Fatalf("\t%s\tTest 2:\tShould list two valid blocks: %+v", failed, blocks)
			}
			t.Logf("\t%s\tTest 2:\tShould list two valid blocks.", success)

			var count struct {
				Transactions int `json:"transactions"`
			}
			if code := call(app, http.MethodPost, "/v1/reindex", "", &count); code != http.StatusOK || count.Transactions != 2 {
				t.Fatalf("\t%s\tTest 2:\tShould reindex two transactions: got %d %d", failed, code, count.Transactions)
			}
			t.Logf("\t%s\tTest 2:\tShould reindex two transactions.", success)
		}

		t.Logf("\tTest 3:\tWhen managing wallets.")
		{
			if code := call(app, http.MethodPost, "/v1/wallets", "", nil); code != http.StatusCreated {
				t.Fatalf("\t%s\tTest 3:\tShould create a wallet: got %d", failed, code)
			}

			var resp struct {
				Addresses []string `json:"addresses"`
			}
			if code := call(app, http.MethodGet, "/v1/wallets", "", &resp); code != http.StatusOK || len(resp.Addresses) != 3 {
				t.Fatalf("\t%s\tTest 3:\tShould list three wallets: got %d %v", failed, code, resp.Addresses)
			}
			t.Logf("\t%s\tTest 3:\tShould create and list wallets.", success)
		}
	}
}
