package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatternTable_FirstRowWins(t *testing.T) {
	table, err := CompilePatterns([]Pattern{
		{Field: "n", Expr: `a=(\d+)`, Coerce: CoerceCount},
		{Field: "n", Expr: `b=(\d+)`, Coerce: CoerceCount},
	})
	require.NoError(t, err)

	f := table.Apply("b=2 a=1")
	n, ok := f.Count("n")
	require.True(t, ok)
	assert.Equal(t, int64(1), n)

	f = table.Apply("b=2")
	n, ok = f.Count("n")
	require.True(t, ok)
	assert.Equal(t, int64(2), n)
}

func TestPatternTable_Coercions(t *testing.T) {
	table, err := CompilePatterns([]Pattern{
		{Field: "s", Expr: `s="([^"]*)"`},
		{Field: "j", Expr: `j="((?:[^"\\]|\\.)*)"`, Coerce: CoerceJSONString},
		{Field: "c", Expr: `c=(\S+)`, Coerce: CoerceCount},
		{Field: "b", Expr: `b=(\w+)`, Coerce: CoerceBool},
		{Field: "t", Expr: `t=(\d+)`, Coerce: CoerceUnixTime},
		{Field: "d", Expr: `d=\[([^\]]+)\]`, Coerce: CoerceDate},
	})
	require.NoError(t, err)

	f := table.Apply(`s=" plain " j="café \"x\"" c=1.5K b=true t=1704067200 d=[March 5, 2023]`)

	assert.Equal(t, "plain", f.String("s"))
	assert.Equal(t, `café "x"`, f.String("j"))
	c, _ := f.Count("c")
	assert.Equal(t, int64(1500), c)
	b, ok := f.Bool("b")
	assert.True(t, ok)
	assert.True(t, b)
	assert.Equal(t, "2024-01-01T00:00:00Z", f.String("t"))
	assert.Equal(t, "2023-03-05", f.String("d"))
}

func TestPatternTable_FailedCoercionFallsThrough(t *testing.T) {
	table, err := CompilePatterns([]Pattern{
		{Field: "b", Expr: `x=(\w+)`, Coerce: CoerceBool},
		{Field: "b", Expr: `y=(\w+)`, Coerce: CoerceBool},
	})
	require.NoError(t, err)

	b, ok := table.Apply("x=maybe y=false").Bool("b")
	require.True(t, ok)
	assert.False(t, b)
}

func TestCompilePatterns_UnknownCoercion(t *testing.T) {
	_, err := CompilePatterns([]Pattern{{Field: "x", Expr: `(a)`, Coerce: "hex"}})
	assert.Error(t, err)
}

func TestDefaultPatterns_Compile(t *testing.T) {
	_, err := NewReconciler(DefaultPatterns())
	require.NoError(t, err)
}

func TestAt(t *testing.T) {
	v := map[string]any{
		"edges": []any{map[string]any{"node": map[string]any{"text": "hi"}}},
	}
	got, ok := at(v, "edges.0.node.text")
	require.True(t, ok)
	assert.Equal(t, "hi", got)

	_, ok = at(v, "edges.1.node")
	assert.False(t, ok)
	_, ok = at(v, "edges.x")
	assert.False(t, ok)
}

func TestFirstCount(t *testing.T) {
	v := map[string]any{
		"edge_followed_by": map[string]any{"count": float64(12)},
		"label":            "3.4K",
		"neg":              float64(-1),
	}
	n, ok := firstCount(v, "missing", "edge_followed_by")
	require.True(t, ok)
	assert.Equal(t, int64(12), n)

	n, ok = firstCount(v, "neg", "label")
	require.True(t, ok)
	assert.Equal(t, int64(3400), n)
}

func TestReadScripts_SkipsEmptyAndExternal(t *testing.T) {
	sd := ReadScripts(`<script src="/app.js"></script><script>  </script><script>window.d = {"a":1};</script>`, nil)
	require.Len(t, sd.Texts, 1)
	require.Len(t, sd.Trees, 1)
	assert.Empty(t, sd.Fields)
}

func TestReadMeta_FirstTagWins(t *testing.T) {
	md := ReadMeta(`<html><head><title>T</title>
		<meta property="og:title" content="first">
		<meta property="og:title" content="second">
		<meta name="Description" content="plain">
		<meta property="og:video" content="https://cdn.test/v.mp4">
	</head></html>`)

	assert.Equal(t, "first", md.OGTitle())
	assert.Equal(t, "plain", md.Description())
	assert.Equal(t, "T", md.Title)
	assert.True(t, md.IsVideo())
}
