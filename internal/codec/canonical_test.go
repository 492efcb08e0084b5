package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalizeBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"string", `"hello"`, `"hello"`},
		{"empty string", `""`, `""`},
		{"int", `42`, "42"},
		{"negative int", `-100`, "-100"},
		{"zero", `0`, "0"},
		{"bool true", `true`, "true"},
		{"bool false", `false`, "false"},
		{"null", `null`, "null"},
		{"empty array", `[]`, "[]"},
		{"empty object", `{}`, "{}"},
		{"array of ints", `[1, 2, 3]`, "[1,2,3]"},
		{"simple object", `{"a": 1}`, `{"a":1}`},
		{"nested", `{"a": {"b": [1, true, null]}}`, `{"a":{"b":[1,true,null]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Canonicalize([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestCanonicalizeSortedKeys(t *testing.T) {
	result, err := Canonicalize([]byte(`{"zebra": 1, "alpha": 2, "beta": 3}`))
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"beta":3,"zebra":1}`, string(result))
}

func TestCanonicalizeNestedSortedKeys(t *testing.T) {
	result, err := Canonicalize([]byte(`{"z": {"b": 1, "a": 2}, "a": 3}`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":3,"z":{"a":2,"b":1}}`, string(result))
}

func TestCanonicalizeUTF16Ordering(t *testing.T) {
	// U+E000 vs U+10000: in UTF-16 the surrogate pair for U+10000 starts at
	// 0xD800, which sorts before 0xE000, the reverse of UTF-8 byte order.
	keyPUA := string(rune(0xE000))
	keySMP := string(rune(0x10000))
	input := `{"` + keyPUA + `": 1, "` + keySMP + `": 2}`

	result, err := Canonicalize([]byte(input))
	require.NoError(t, err)

	expected := `{"` + keySMP + `":2,"` + keyPUA + `":1}`
	assert.Equal(t, expected, string(result))
}

func TestCanonicalizeNoHTMLEscape(t *testing.T) {
	result, err := Canonicalize([]byte(`{"html": "<script>a & b</script>"}`))
	require.NoError(t, err)

	assert.Equal(t, `{"html":"<script>a & b</script>"}`, string(result))
	assert.NotContains(t, string(result), `<`)
	assert.NotContains(t, string(result), `>`)
	assert.NotContains(t, string(result), `&`)
}

func TestCanonicalizeNFCNormalization(t *testing.T) {
	// U+0065 U+0301 (e + combining acute) must canonicalize to the
	// precomposed U+00E9, so both spellings address identically.
	decomposed := `"e` + string(rune(0x0301)) + `"`
	precomposed := `"` + string(rune(0x00E9)) + `"`

	a, err := Canonicalize([]byte(decomposed))
	require.NoError(t, err)
	b, err := Canonicalize([]byte(precomposed))
	require.NoError(t, err)

	assert.Equal(t, string(b), string(a))
	assert.Equal(t, precomposed, string(a))
}

func TestCanonicalizeNumberLiteralsPreserved(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"large int", `9007199254740993`},
		{"decimal", `0.1`},
		{"exponent", `1e21`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Canonicalize([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.input, string(result))
		})
	}
}

func TestCanonicalizeWhitespaceInsensitive(t *testing.T) {
	a, err := Canonicalize([]byte(`{"a":1,"b":[2,3]}`))
	require.NoError(t, err)
	b, err := Canonicalize([]byte("{\n  \"b\": [ 2, 3 ],\n  \"a\": 1\n}"))
	require.NoError(t, err)

	assert.Equal(t, string(a), string(b))
}

func TestCanonicalizeErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"invalid json", `{"a":`},
		{"trailing data", `{"a":1} extra`},
		{"empty input", ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Canonicalize([]byte(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestCanonicalizeIdempotent(t *testing.T) {
	once, err := Canonicalize([]byte(`{"z": "e` + string(rune(0x0301)) + `", "a": [1.5, "<b>"]}`))
	require.NoError(t, err)
	twice, err := Canonicalize(once)
	require.NoError(t, err)
	assert.Equal(t, string(once), string(twice))
}

func TestMarshalStruct(t *testing.T) {
	v := struct {
		Zebra int    `json:"zebra"`
		Alpha string `json:"alpha"`
	}{Zebra: 1, Alpha: "<a>"}

	result, err := Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":"<a>","zebra":1}`, string(result))
}
