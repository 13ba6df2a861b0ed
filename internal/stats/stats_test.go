package stats

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	out := Format([]Row{
		{Addr: "10.0.0.1:5000", Messages: 3, Bytes: 120},
		{Addr: "[::1]:6000", Messages: 0, Bytes: 0},
	})
	assert.Equal(t, "ip,num_messages,total_data\n10.0.0.1:5000,3,120\n[::1]:6000,0,0\n", string(out))
}

func TestFormatEmpty(t *testing.T) {
	assert.Equal(t, "ip,num_messages,total_data\n", string(Format(nil)))
}

func TestFormatQuotesAddresses(t *testing.T) {
	out := Format([]Row{{Addr: `odd,"addr"`, Messages: 1, Bytes: 2}})

	records, err := csv.NewReader(bytes.NewReader(out)).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"ip", "num_messages", "total_data"},
		{`odd,"addr"`, "1", "2"},
	}, records)
}
