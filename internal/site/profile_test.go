package site

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvokeRoundTrip(t *testing.T) {
	fn := DefaultProfile().Scripts.SelectOrders
	script := Invoke(fn, []string{"1001", "1002"})

	args, ok := ParseInvocation(script, fn)
	require.True(t, ok)
	require.Len(t, args, 1)

	var ids []string
	require.NoError(t, json.Unmarshal(args[0], &ids))
	assert.Equal(t, []string{"1001", "1002"}, ids)
}

func TestParseInvocation_OtherScript(t *testing.T) {
	p := DefaultProfile()
	_, ok := ParseInvocation(Invoke(p.Scripts.SetFilters, FilterArgs{Limit: 100}), p.Scripts.SelectOrders)
	assert.False(t, ok)

	_, ok = ParseInvocation(p.Scripts.BulkRows, p.Scripts.SetFilters)
	assert.False(t, ok)
}

func TestChainNamesLocators(t *testing.T) {
	chain := Chain("#a", ".b")
	require.Len(t, chain, 2)
	assert.Equal(t, Locator{Name: "#a", Selector: "#a"}, chain[0])
	assert.Equal(t, ".b", chain[1].Selector)
}
