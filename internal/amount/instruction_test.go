package amount

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInstructionParser_Parse(t *testing.T) {
	p := NewInstructionParser("chaintip")

	tests := []struct {
		name     string
		text     string
		ok       bool
		quantity string
		unit     string
	}{
		{"quantity and unit", "great post u/chaintip 500 bits", true, "500", "bits"},
		{"alias", "u/chaintip a coffee!", true, "a", "coffee"},
		{"prefix symbol", "thanks /u/chaintip $5", true, "$5", ""},
		{"case insensitive bot", "U/ChainTip 3 beers.", true, "3", "beers"},
		{"multiline keeps first line", "u/chaintip 1 pizza\nand more", true, "1", "pizza"},
		{"other bot", "u/someone 5 bits", false, "", ""},
		{"bare mention", "u/chaintip", false, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, ok := p.Parse(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.quantity, in.Quantity)
			assert.Equal(t, tt.unit, in.Unit)
		})
	}
}

func TestTable_Lookup(t *testing.T) {
	table := DefaultTable()

	u, ok := table.Lookup("coffees")
	assert.True(t, ok)
	assert.Equal(t, "EUR", u.Currency)
	assert.Equal(t, "3", u.Value.String())

	_, ok = table.Lookup("COFFEE")
	assert.False(t, ok)
}
