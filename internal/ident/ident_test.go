package ident

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", "hello", `"hello"`},
		{"empty string", "", `""`},
		{"int", 42, "42"},
		{"negative int64", int64(-100), "-100"},
		{"max uint64", uint64(math.MaxUint64), "18446744073709551615"},
		{"bool true", true, "true"},
		{"bool false", false, "false"},
		{"empty array", []any{}, "[]"},
		{"empty object", map[string]any{}, "{}"},
		{"string slice", []string{"a", "b"}, `["a","b"]`},
		{"string map", map[string]string{"b": "1", "a": "2"}, `{"a":"2","b":"1"}`},
		{"no html escaping", "<a & b>", `"<a & b>"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalSortedKeys(t *testing.T) {
	obj := map[string]any{
		"zebra": 1,
		"alpha": 2,
		"beta":  map[string]any{"y": 1, "x": 2},
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"beta":{"x":2,"y":1},"zebra":1}`, string(result))
}

func TestMarshalCanonicalRejects(t *testing.T) {
	for _, v := range []any{nil, 1.5, float32(2), map[string]any{"a": nil}, []any{3.0}, struct{}{}} {
		_, err := MarshalCanonical(v)
		assert.Error(t, err, "%#v", v)
	}
}

func TestMarshalCanonicalNFC(t *testing.T) {
	// e + combining acute normalizes to the precomposed form.
	result, err := MarshalCanonical("e\u0301")
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(result))
}

func TestMarshalCanonicalLineSeparators(t *testing.T) {
	result, err := MarshalCanonical("a\u2028b\u2029c")
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\u2029c\"", string(result))

	// A literal backslash followed by the text u2028 stays escaped.
	result, err = MarshalCanonical(`x\u2028`)
	require.NoError(t, err)
	assert.Equal(t, `"x\\u2028"`, string(result))
}

func TestHasher_BitExact(t *testing.T) {
	a := NewHasher(DomainDraws).Float64(0.1).Sum()
	b := NewHasher(DomainDraws).Float64(0.1).Sum()
	c := NewHasher(DomainDraws).Float64(math.Nextafter(0.1, 1)).Sum()
	d := NewHasher(DomainDataset).Float64(0.1).Sum()

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d, "domain separation")
	assert.Len(t, a, 64)

	assert.NotEqual(t,
		NewHasher(DomainDraws).Bool(true).Sum(),
		NewHasher(DomainDraws).Bool(false).Sum())
}

func TestRunKey(t *testing.T) {
	base, err := RunKey("digest", 42, 4, 1000, 1000)
	require.NoError(t, err)

	again, err := RunKey("digest", 42, 4, 1000, 1000)
	require.NoError(t, err)
	assert.Equal(t, base, again)

	variants := [][5]any{
		{"other", uint64(42), uint64(4), uint64(1000), uint64(1000)},
		{"digest", uint64(43), uint64(4), uint64(1000), uint64(1000)},
		{"digest", uint64(42), uint64(3), uint64(1000), uint64(1000)},
		{"digest", uint64(42), uint64(4), uint64(999), uint64(1000)},
		{"digest", uint64(42), uint64(4), uint64(1000), uint64(999)},
	}
	for i, v := range variants {
		k, err := RunKey(v[0].(string), v[1].(uint64), v[2].(uint64), v[3].(uint64), v[4].(uint64))
		require.NoError(t, err)
		assert.NotEqual(t, base, k, "variant %d", i)
	}
}

func TestDatasetDigest(t *testing.T) {
	a := DatasetDigest([]float64{1, 2}, []float64{3, 4})
	assert.Equal(t, a, DatasetDigest([]float64{1, 2}, []float64{3, 4}))
	assert.NotEqual(t, a, DatasetDigest([]float64{1, 2}, []float64{4, 3}))
	assert.NotEqual(t, a, DatasetDigest([]float64{1}, []float64{3}))
}

func TestFixedGenerator(t *testing.T) {
	gen := NewFixedGenerator("run-1", "run-2")
	assert.Equal(t, "run-1", gen.Generate())
	assert.Equal(t, "run-2", gen.Generate())
	assert.Panics(t, func() { gen.Generate() })
}

func TestUUIDv7Generator(t *testing.T) {
	var gen IDGenerator = UUIDv7Generator{}
	a := gen.Generate()
	b := gen.Generate()

	assert.NotEqual(t, a, b)
	assert.Len(t, a, 36)
	assert.True(t, ValidRunID(a))
	assert.False(t, ValidRunID("not-a-uuid"))
}
