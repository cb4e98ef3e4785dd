package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBanner(t *testing.T) {
	t.Parallel()

	got := Banner("hi", 8, AlignCenter)
	assert.Equal(t, "╒══════╕\n│  hi  │\n└──────┘\n", got)

	assert.Equal(t, "│hi    │", strings.Split(Banner("hi", 8, AlignLeft), "\n")[1])
	assert.Equal(t, "│    hi│", strings.Split(Banner("hi", 8, AlignRight), "\n")[1])
	assert.Equal(t, "│abcde…│", strings.Split(Banner("abcdefghij", 8, AlignLeft), "\n")[1])

	assert.Empty(t, Banner("", 8, AlignLeft))
	assert.Empty(t, Banner("x", 2, AlignLeft))
}

func TestDivider(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "┠───┨\n", Divider(5))
}
