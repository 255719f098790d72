// Package testutil holds helpers shared by package tests.
package testutil

import (
	"os"
	"testing"
)

// SkipIfNoNetwork skips the test if BAZAAR_TEST_SKIP_NETWORK is set.
// Use this for tests that start an httptest server, since loopback TCP
// may not be available in sandboxed environments.
func SkipIfNoNetwork(t *testing.T) {
	t.Helper()
	if os.Getenv("BAZAAR_TEST_SKIP_NETWORK") != "" {
		t.Skip("skipping network test: BAZAAR_TEST_SKIP_NETWORK is set")
	}
}
