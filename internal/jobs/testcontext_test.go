package jobs

import (
	"context"
	"testing"
)

// testContext stands in for testing.T.Context (Go 1.24+) so the tests build
// on older toolchains: the returned context is cancelled when the test ends.
func testContext(t testing.TB) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
