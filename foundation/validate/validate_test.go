package validate_test

import (
	"testing"

	"github.com/ardanlabs/utxochain/foundation/validate"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

type send struct {
	From   string `json:"from" validate:"required,address"`
	To     string `json:"to" validate:"required,address"`
	Amount uint64 `json:"amount" validate:"required,gt=0"`
}

func TestCheck(t *testing.T) {
	const addr = "1BoatSLRHtKNngkdXEeobR76b53LETtpyT"

	t.Log("Given the need to validate request models.")
	{
		t.Logf("\tTest 0:\tWhen handling a valid model.")
		{
			if err := validate.Check(send{From: addr, To: addr, Amount: 1}); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould pass validation: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould pass validation.", success)
		}

		t.Logf("\tTest 1:\tWhen handling an invalid model.")
		{
			err := validate.Check(send{From: "not-an-address", To: addr})
			if !validate.IsFieldErrors(err) {
				t.Fatalf("\t%s\tTest 1:\tShould get field errors: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould get field errors.", success)

			fields := validate.GetFieldErrors(err).Fields()
			if _, exists := fields["from"]; !exists {
				t.Fatalf("\t%s\tTest 1:\tShould report the from field by its json name: %v", failed, fields)
			}
			if _, exists := fields["amount"]; !exists {
				t.Fatalf("\t%s\tTest 1:\tShould report the amount field by its json name: %v", failed, fields)
			}
			if _, exists := fields["to"]; exists {
				t.Fatalf("\t%s\tTest 1:\tShould not report the valid to field: %v", failed, fields)
			}
			t.Logf("\t%s\tTest 1:\tShould report the failing fields by json name.", success)
		}
	}
}
