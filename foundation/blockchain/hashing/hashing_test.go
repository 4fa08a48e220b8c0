package hashing_test

import (
	"encoding/hex"
	"testing"

	"github.com/ardanlabs/utxochain/foundation/blockchain/hashing"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_Sha256(t *testing.T) {
	t.Log("Given the need to produce known SHA-256 digests.")
	{
		const exp = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"

		got := hashing.Sha256([]byte("abc"))
		if got != exp {
			t.Logf("\t%s\tgot: %s", failed, got)
			t.Logf("\t%s\texp: %s", failed, exp)
			t.Fatalf("\t%s\tShould get the known digest for abc.", failed)
		}
		t.Logf("\t%s\tShould get the known digest for abc.", success)
	}
}

func Test_Sha256x2(t *testing.T) {
	t.Log("Given the need to double hash a payload.")
	{
		first, _ := hex.DecodeString(hashing.Sha256([]byte("abc")))
		exp := hashing.Sha256(first)

		got := hashing.Sha256x2([]byte("abc"))
		if got != exp {
			t.Logf("\t%s\tgot: %s", failed, got)
			t.Logf("\t%s\texp: %s", failed, exp)
			t.Fatalf("\t%s\tShould hash the raw first digest, not its hex form.", failed)
		}
		t.Logf("\t%s\tShould hash the raw first digest, not its hex form.", success)

		if len(got) != 64 {
			t.Fatalf("\t%s\tShould produce a 64 character digest: %d", failed, len(got))
		}
		t.Logf("\t%s\tShould produce a 64 character digest.", success)
	}
}

func Test_Ripemd160(t *testing.T) {
	t.Log("Given the need to produce known RIPEMD-160 digests.")
	{
		const exp = "8eb208f7e05d987a9b044a8e98c6b087f15a0bfc"

		got := hex.EncodeToString(hashing.Ripemd160([]byte("abc")))
		if got != exp {
			t.Logf("\t%s\tgot: %s", failed, got)
			t.Logf("\t%s\texp: %s", failed, exp)
			t.Fatalf("\t%s\tShould get the known digest for abc.", failed)
		}
		t.Logf("\t%s\tShould get the known digest for abc.", success)

		pkh := hashing.PublicKeyHash([]byte{0x04, 0x01, 0x02})
		if len(pkh) != hashing.PublicKeyHashLength {
			t.Fatalf("\t%s\tShould produce a 20 byte public key hash: %d", failed, len(pkh))
		}
		t.Logf("\t%s\tShould produce a 20 byte public key hash.", success)
	}
}
