package server

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain verifies no goroutine leaks occur during testing.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("testing.(*M).Run.func1"),
		goleak.IgnoreTopFunction("testing.tRunner"),
	)
}
