package stream

import (
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-varint"
)

// idMulticodec is the multicodec code identifying a stream identifier in its
// binary form: varint(idMulticodec) ++ varint(type) ++ genesis CID bytes.
const idMulticodec = 0xce

// Type is the stream type discriminant. The set is closed: values outside it
// parse fine (identifiers are forward-compatible) but fail state construction
// with UNSUPPORTED_STREAM_TYPE.
type Type uint64

const (
	// TypeTile is a free-form document stream with no model binding required.
	TypeTile Type = 0
	// TypeModel is a stream whose content defines a model other streams
	// declare membership in.
	TypeModel Type = 2
	// TypeModelInstance is a document stream bound to a declared model.
	TypeModelInstance Type = 3
)

// Supported reports whether this engine can fold streams of the given type.
func (t Type) Supported() bool {
	switch t {
	case TypeTile, TypeModel, TypeModelInstance:
		return true
	}
	return false
}

func (t Type) String() string {
	switch t {
	case TypeTile:
		return "tile"
	case TypeModel:
		return "model"
	case TypeModelInstance:
		return "model-instance"
	}
	return fmt.Sprintf("unknown(%d)", uint64(t))
}

// ID identifies a mutable logical stream: the stream type plus the content
// address of its genesis commit. Immutable once constructed; the zero value
// is not a valid identifier (see Defined).
type ID struct {
	Type    Type
	Genesis cid.Cid
}

// NewID builds an identifier from a type and genesis address.
func NewID(t Type, genesis cid.Cid) ID {
	return ID{Type: t, Genesis: genesis}
}

// Defined reports whether the identifier carries a genesis address.
func (id ID) Defined() bool {
	return id.Genesis.Defined()
}

// String renders the identifier in its wire form: multibase base36 over
// varint(0xce) ++ varint(type) ++ genesis CID bytes.
func (id ID) String() string {
	genesis := id.Genesis.Bytes()
	buf := make([]byte, 0, 2*varint.MaxLenUvarint63+len(genesis))
	buf = append(buf, varint.ToUvarint(idMulticodec)...)
	buf = append(buf, varint.ToUvarint(uint64(id.Type))...)
	buf = append(buf, genesis...)

	s, err := multibase.Encode(multibase.Base36, buf)
	if err != nil {
		// Base36 is compiled into go-multibase; encoding cannot fail.
		panic(err)
	}
	return s
}

// ParseID parses the wire form produced by String. Unrecognized type values
// are accepted here; they are rejected later at state construction.
func ParseID(s string) (ID, error) {
	_, data, err := multibase.Decode(s)
	if err != nil {
		return ID{}, fmt.Errorf("parse stream id %q: %w", s, err)
	}

	code, n, err := varint.FromUvarint(data)
	if err != nil {
		return ID{}, fmt.Errorf("parse stream id %q: read multicodec: %w", s, err)
	}
	if code != idMulticodec {
		return ID{}, fmt.Errorf("parse stream id %q: not a stream id (multicodec 0x%x)", s, code)
	}
	data = data[n:]

	typ, n, err := varint.FromUvarint(data)
	if err != nil {
		return ID{}, fmt.Errorf("parse stream id %q: read type: %w", s, err)
	}
	data = data[n:]

	genesis, err := cid.Cast(data)
	if err != nil {
		return ID{}, fmt.Errorf("parse stream id %q: read genesis cid: %w", s, err)
	}

	return ID{Type: Type(typ), Genesis: genesis}, nil
}

// MarshalText implements encoding.TextMarshaler (and thereby JSON encoding).
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := ParseID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
