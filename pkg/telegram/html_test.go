package telegram

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatting(t *testing.T) {
	assert.Equal(t, "a &lt;b&gt; &amp; c", Escape("a <b> & c"))
	assert.Equal(t, "<b>Ali &amp; Sons</b>", Bold("Ali & Sons"))
	assert.Equal(t, "<code>07501234567</code>", Code("07501234567"))

	assert.Equal(t, "Sara", Mention("Sara", "sara", 1))
	assert.Equal(t, "@sara", Mention("", "sara", 1))
	assert.Equal(t, "42", Mention("", "", 42))
}

func TestAmount(t *testing.T) {
	tests := map[int64]string{
		0:          "0",
		999:        "999",
		1000:       "1,000",
		50000:      "50,000",
		1250000:    "1,250,000",
		-30000:     "-30,000",
		100000:     "100,000",
		1000000000: "1,000,000,000",
	}
	for in, want := range tests {
		assert.Equal(t, want, Amount(in), "%d", in)
	}
}
