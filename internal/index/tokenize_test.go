package index

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	testCases := []struct {
		name string
		text string
		want []string
	}{
		{name: "simple", text: "Buy milk", want: []string{"buy", "milk"}},
		{name: "short tokens dropped", text: "go to the gym", want: []string{"the", "gym"}},
		{name: "punctuation stripped", text: "Call mom!! (re: taxes)", want: []string{"call", "mom", "taxes"}},
		{name: "apostrophe joins", text: "don't forget", want: []string{"dont", "forget"}},
		{name: "duplicates removed", text: "milk, MILK and milk", want: []string{"milk", "and"}},
		{name: "unicode", text: "Café crème", want: []string{"café", "crème"}},
		{name: "digits kept", text: "pay 2026 taxes", want: []string{"pay", "2026", "taxes"}},
		{name: "only punctuation", text: "?!... --", want: nil},
		{name: "empty", text: "", want: nil},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Tokenize(tc.text))
		})
	}
}

func TestTokenizeDeterministic(t *testing.T) {
	text := "Review Q3 budget; email Alice & Bob about the budget."
	first := Tokenize(text)
	for range 10 {
		require.Equal(t, first, Tokenize(text))
	}
}
