package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_DefaultsToSkip(t *testing.T) {
	var l Ledger

	assert.Equal(t, Skip, l.For(3))
	assert.Equal(t, OutcomeSkipDuplicate, l.Resolve(3, true, true))
}

func TestLedger_Resolve(t *testing.T) {
	l := Ledger{1: Import, 2: Skip}

	tests := []struct {
		name      string
		row       int
		valid     bool
		duplicate bool
		want      Outcome
	}{
		{"valid unique row always imports", 9, true, false, OutcomeImport},
		{"unique row ignores skip entry", 2, true, false, OutcomeImport},
		{"duplicate marked import", 1, true, true, OutcomeImport},
		{"duplicate marked skip", 2, true, true, OutcomeSkipDuplicate},
		{"duplicate without decision", 5, true, true, OutcomeSkipDuplicate},
		{"invalid row never imports", 1, false, true, OutcomeSkipInvalid},
		{"invalid unique row", 7, false, false, OutcomeSkipInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, l.Resolve(tt.row, tt.valid, tt.duplicate))
		})
	}
}

func TestLedger_With(t *testing.T) {
	l := Ledger{1: Skip}
	next := l.With(1, Import)

	assert.Equal(t, Skip, l.For(1))
	assert.Equal(t, Import, next.For(1))
}

func TestFromStrings(t *testing.T) {
	l, err := FromStrings(map[int]string{1: "IMPORT", 2: " skip "})
	require.NoError(t, err)
	assert.Equal(t, Import, l.For(1))
	assert.Equal(t, Skip, l.For(2))

	_, err = FromStrings(map[int]string{4: "maybe"})
	assert.ErrorContains(t, err, "row 4")
}
