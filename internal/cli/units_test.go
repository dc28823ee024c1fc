package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnitsCommand_Text(t *testing.T) {
	out, err := executeRoot(t, "units")
	require.NoError(t, err)

	assert.Contains(t, out, "Units (base BCH):")
	assert.Contains(t, out, "bit, bits, cash")
	assert.Contains(t, out, "1 USD (linked 0.01)\n")
	assert.Contains(t, out, "Quantity aliases:\n  a = 1\n  an = 1\n")
	assert.Contains(t, out, "  $ = USD\n")
}

func TestUnitsCommand_ConfiguredUnitsFirst(t *testing.T) {
	cfg := writeConfig(t, ratesConfig)

	out, err := executeRoot(t, "--config", cfg, "--format", "json", "units")
	require.NoError(t, err)

	var resp Envelope[UnitsResult]
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "BCH", resp.Data.Base)
	require.NotEmpty(t, resp.Data.Units)
	assert.Equal(t, UnitView{Names: []string{"stroopwafel"}, Value: "0.5", Currency: "EUR"}, resp.Data.Units[0])
	assert.Equal(t, "1", resp.Data.Aliases["an"])

	for _, u := range resp.Data.Units {
		if u.Names[0] == "welcome" {
			assert.Equal(t, "0.01", u.ValueLinked)
		} else if u.Names[0] == "bit" {
			assert.Empty(t, u.ValueLinked)
		}
	}
	assert.Equal(t, "EUR", resp.Data.Symbols["€"])
}

func TestUnitsCommand_RejectsArgs(t *testing.T) {
	_, err := executeRoot(t, "units", "bits")
	require.Error(t, err)
}

func TestSortedKeys(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, sortedKeys(map[string]string{"c": "", "a": "", "b": ""}))
	assert.Empty(t, sortedKeys(nil))
}
