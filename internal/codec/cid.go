package codec

import (
	"fmt"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
)

// Multicodec content type codes carried in the CIDs this engine mints.
const (
	CodecRaw     = 0x55
	CodecDagJSON = 0x0129
)

// SumJSON canonicalizes a JSON document and returns the CIDv1 (dag-json,
// SHA2-256) of the canonical bytes, together with those bytes. Callers that
// publish the block MUST publish the returned canonical bytes, not the input,
// or the address will not match the stored payload.
func SumJSON(raw []byte) (cid.Cid, []byte, error) {
	canonical, err := Canonicalize(raw)
	if err != nil {
		return cid.Undef, nil, err
	}
	sum, err := mh.Sum(canonical, mh.SHA2_256, -1)
	if err != nil {
		return cid.Undef, nil, fmt.Errorf("sum json block: %w", err)
	}
	return cid.NewCidV1(CodecDagJSON, sum), canonical, nil
}

// SumRaw returns the CIDv1 (raw, SHA2-256) of data exactly as given.
func SumRaw(data []byte) (cid.Cid, error) {
	sum, err := mh.Sum(data, mh.SHA2_256, -1)
	if err != nil {
		return cid.Undef, fmt.Errorf("sum raw block: %w", err)
	}
	return cid.NewCidV1(CodecRaw, sum), nil
}

// Verify reports whether data hashes to the multihash carried by c under the
// codec c declares. Used to cross-check bytes handed back by remote nodes.
func Verify(c cid.Cid, data []byte) (bool, error) {
	decoded, err := mh.Decode(c.Hash())
	if err != nil {
		return false, fmt.Errorf("decode multihash: %w", err)
	}
	sum, err := mh.Sum(data, decoded.Code, decoded.Length)
	if err != nil {
		return false, fmt.Errorf("sum block: %w", err)
	}
	return sum.String() == c.Hash().String(), nil
}
