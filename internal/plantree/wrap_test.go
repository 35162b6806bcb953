package plantree

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapTextShortString(t *testing.T) {
	assert.Equal(t, []string{"customer"}, WrapText("customer", 20))
}

func TestWrapTextSplitsOnSpaces(t *testing.T) {
	lines := WrapText("customer orders lineitem supplier", 16)
	for _, line := range lines {
		assert.LessOrEqual(t, len(line), 16)
	}
	assert.Equal(t, []string{"customer orders", "lineitem", "supplier"}, lines)
}

func TestWrapTextHardBreaksLongToken(t *testing.T) {
	lines := WrapText("abcdefghij", 4)
	assert.Equal(t, []string{"abcd", "efgh", "ij"}, lines)
}

func TestWrapTextEmpty(t *testing.T) {
	assert.Nil(t, WrapText("   ", 10))
}

func TestWrapTextZeroWidthUsesDefault(t *testing.T) {
	lines := WrapText("customer", 0)
	assert.Equal(t, []string{"customer"}, lines)
}

func TestWrapListPreservesSource(t *testing.T) {
	tables := []string{"customer", "orders"}
	WrapList(tables, 5)
	// wrapping is display-only: the inputs stay usable for comparisons
	assert.Equal(t, []string{"customer", "orders"}, tables)
}
