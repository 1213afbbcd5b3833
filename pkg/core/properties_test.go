package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProperties_PreservesInsertionOrder(t *testing.T) {
	var p Properties
	p.Set("zeta", "1")
	p.Set("alpha", "2")
	p.Add("mid", "3")
	p.Set("zeta", "4", "5")

	assert.Equal(t, []string{"zeta", "alpha", "mid"}, p.Keys())
	assert.Equal(t, []string{"4", "5"}, p.Get("zeta"))
	assert.Equal(t, "4", p.First("zeta"))
	assert.Equal(t, 3, p.Len())
}

func TestProperties_AddAndDelete(t *testing.T) {
	var p Properties
	p.Add("files", "a.txt")
	p.Add("files", "b.txt")
	assert.Equal(t, []string{"a.txt", "b.txt"}, p.Get("files"))

	p.Delete("files")
	assert.False(t, p.Has("files"))
	assert.Nil(t, p.Get("files"))
	assert.Empty(t, p.First("files"))
}

func TestProperties_GetReturnsCopy(t *testing.T) {
	var p Properties
	p.Set("k", "v")

	vals := p.Get("k")
	vals[0] = "mutated"

	assert.Equal(t, "v", p.First("k"))
}

func TestProperties_JSONKeepsOrder(t *testing.T) {
	var p Properties
	p.Set("b", "1")
	p.Set("a", "2", "3")

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"key":"b","values":["1"]},{"key":"a","values":["2","3"]}]`, string(data))

	var back Properties
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, p.Equal(back))
}
