package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// Canonicalize re-encodes a JSON document into canonical form.
// CRITICAL: this is the ONLY serialization that may feed content-address
// computation; two documents that differ only in key order, whitespace, or
// Unicode normalization canonicalize to identical bytes.
//
// Canonical form:
//  1. Object keys sorted by UTF-16 code units (not UTF-8 bytes)
//  2. No insignificant whitespace
//  3. No HTML escaping (< > & are NOT escaped)
//  4. Strings NFC normalized
//  5. Numbers preserved as their source literals (decoded via json.Number, so
//     no float64 round-trip loss; authors are expected to write canonical
//     number forms)
func Canonicalize(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("canonicalize: trailing data after JSON document")
	}

	var buf bytes.Buffer
	if err := encodeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Marshal encodes v with encoding/json and then canonicalizes the result.
// Struct tags apply as usual; the canonical pass fixes ordering and escaping.
func Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical marshal: %w", err)
	}
	return Canonicalize(data)
}

func encodeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case json.Number:
		buf.WriteString(string(val))
		return nil
	case string:
		return encodeCanonicalString(buf, val)
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeCanonical(buf, elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
		return nil
	case map[string]any:
		buf.WriteByte('{')
		for i, k := range sortedKeysUTF16(val) {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeCanonicalString(buf, k); err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
			buf.WriteByte(':')
			if err := encodeCanonical(buf, val[k]); err != nil {
				return fmt.Errorf("value for key %q: %w", k, err)
			}
		}
		buf.WriteByte('}')
		return nil
	default:
		return fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
}

// sortedKeysUTF16 returns map keys ordered by UTF-16 code units per RFC 8785.
// UTF-16 ordering differs from byte ordering for characters outside the BMP.
func sortedKeysUTF16(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return lessUTF16(keys[i], keys[j])
	})
	return keys
}

func lessUTF16(a, b string) bool {
	ua := utf16.Encode([]rune(a))
	ub := utf16.Encode([]rune(b))
	for i := 0; i < len(ua) && i < len(ub); i++ {
		if ua[i] != ub[i] {
			return ua[i] < ub[i]
		}
	}
	return len(ua) < len(ub)
}

// encodeCanonicalString writes a canonical JSON string: NFC normalized, no
// HTML escaping, and U+2028/U+2029 left unescaped per RFC 8785. Only control
// characters, backslash, and quote stay escaped.
func encodeCanonicalString(buf *bytes.Buffer, s string) error {
	normalized := norm.NFC.String(s)

	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return err
	}

	// json.Encoder appends a trailing newline; drop it.
	out := bytes.TrimSuffix(tmp.Bytes(), []byte("\n"))

	// The stdlib encoder escapes U+2028/U+2029 for JavaScript embedding, which
	// canonical JSON forbids. Unescape them, taking care not to touch a literal
	// backslash followed by the text "u2028" (which the encoder emits as
	// \\u2028): consuming \\ pairs atomically makes the two cases unambiguous.
	buf.Write(unescapeLineSeparators(out))
	return nil
}

var (
	escapedLineSep = []byte{'\\', 'u', '2', '0', '2', '8'}
	escapedParaSep = []byte{'\\', 'u', '2', '0', '2', '9'}
	// UTF-8 encodings of U+2028 and U+2029.
	rawLineSep = []byte{0xE2, 0x80, 0xA8}
	rawParaSep = []byte{0xE2, 0x80, 0xA9}
)

func unescapeLineSeparators(in []byte) []byte {
	if !bytes.Contains(in, escapedLineSep[:5]) {
		return in
	}
	out := make([]byte, 0, len(in))
	for i := 0; i < len(in); {
		if in[i] == '\\' && i+1 < len(in) {
			if in[i+1] == '\\' {
				out = append(out, '\\', '\\')
				i += 2
				continue
			}
			if bytes.HasPrefix(in[i:], escapedLineSep) {
				out = append(out, rawLineSep...)
				i += len(escapedLineSep)
				continue
			}
			if bytes.HasPrefix(in[i:], escapedParaSep) {
				out = append(out, rawParaSep...)
				i += len(escapedParaSep)
				continue
			}
		}
		out = append(out, in[i])
		i++
	}
	return out
}
