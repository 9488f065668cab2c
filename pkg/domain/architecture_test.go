package domain

import (
	"testing"

	"abxcore/testutil"
)

// TestDomainIsALeaf keeps the shared record package free of host and
// plugin dependencies.
func TestDomainIsALeaf(t *testing.T) {
	testutil.AssertNoTransitiveDependency(t, ".", testutil.ImportsUnder("abxcore/internal", "abxcore/plugins", "abxcore/cmd"),
		"pkg/domain is imported by every layer")
}
