package address_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/ardanlabs/utxochain/foundation/blockchain/address"
	"github.com/ardanlabs/utxochain/foundation/blockchain/hashing"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_RoundTrip(t *testing.T) {
	type table struct {
		name      string
		publicKey []byte
	}

	tt := []table{
		{name: "short", publicKey: []byte{0x04, 0x01}},
		{name: "long", publicKey: bytes.Repeat([]byte{0xab}, 65)},
	}

	t.Log("Given the need to encode and decode addresses.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				t.Logf("\tTest %d:\tWhen handling a %s public key.", testID, tst.name)
				{
					pkh := hashing.PublicKeyHash(tst.publicKey)

					addr := address.FromPublicKey(tst.publicKey)
					if !strings.HasPrefix(addr, "1") {
						t.Fatalf("\t%s\tTest %d:\tShould start with the version symbol: %s", failed, testID, addr)
					}
					t.Logf("\t%s\tTest %d:\tShould start with the version symbol.", success, testID)

					got, err := address.Decode(addr)
					if err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to decode the address: %v", failed, testID, err)
					}
					t.Logf("\t%s\tTest %d:\tShould be able to decode the address.", success, testID)

					if !bytes.Equal(got, pkh) {
						t.Logf("\t%s\tTest %d:\tgot: %x", failed, testID, got)
						t.Logf("\t%s\tTest %d:\texp: %x", failed, testID, pkh)
						t.Fatalf("\t%s\tTest %d:\tShould get back the public key hash.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould get back the public key hash.", success, testID)
				}
			}

			t.Run(tst.name, f)
		}
	}
}

func Test_InvalidAddress(t *testing.T) {
	t.Log("Given the need to reject malformed addresses.")
	{
		addr := address.FromPublicKey([]byte{0x04, 0x09})

		// Flip the last character to break the checksum.
		last := addr[len(addr)-1]
		repl := byte('2')
		if last == repl {
			repl = '3'
		}
		broken := addr[:len(addr)-1] + string(repl)

		for _, a := range []string{"", "addrA", broken} {
			_, err := address.Decode(a)
			if !errors.Is(err, address.ErrInvalidAddress) {
				t.Fatalf("\t%s\tShould reject %q: %v", failed, a, err)
			}
			t.Logf("\t%s\tShould reject %q.", success, a)
		}
	}
}
