package payment

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: MapStatus is total and only the documented inputs leave pending.
func TestMapStatusTotality(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("every status maps to approved, rejected or pending", prop.ForAll(
		func(raw string) bool {
			switch got := MapStatus(raw); got {
			case StatusApproved:
				return raw == "approved"
			case StatusRejected:
				return raw == "rejected" || raw == "cancelled"
			case StatusPending:
				return raw != "approved" && raw != "rejected" && raw != "cancelled"
			default:
				return false
			}
		},
		gen.OneGenOf(
			gen.AnyString(),
			gen.AlphaString(),
			gen.OneConstOf("approved", "rejected", "cancelled", "in_process", "pending", ""),
		),
	))

	properties.TestingRun(t)
}
