package stream

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/ipfs/go-cid"
)

// CommitKind names the decoded form of a commit body.
type CommitKind string

const (
	// KindGenesis is the first signed commit of a stream.
	KindGenesis CommitKind = "genesis"
	// KindSigned is a signed, non-genesis data commit.
	KindSigned CommitKind = "signed"
	// KindAnchor is a proof-of-inclusion commit produced by an anchoring
	// service; it advances the tip without changing content.
	KindAnchor CommitKind = "anchor"
)

// Commit is one decoded entry of a stream's log.
//
// INVARIANTS: Prev is nil only for the genesis commit; Raw holds the exact
// block bytes the CID addresses, so re-uploading Raw reproduces the block.
type Commit struct {
	CID   cid.Cid
	Prev  *cid.Cid
	Value Value
	Raw   []byte
}

// IsGenesis reports whether the commit declares no predecessor.
func (c *Commit) IsGenesis() bool { return c.Prev == nil }

// Kind classifies the commit for logging and state history.
func (c *Commit) Kind() CommitKind {
	if _, ok := c.Value.(*Anchor); ok {
		return KindAnchor
	}
	if c.IsGenesis() {
		return KindGenesis
	}
	return KindSigned
}

// AsSigned returns the signed body, or false for anchor commits.
func (c *Commit) AsSigned() (*Signed, bool) {
	s, ok := c.Value.(*Signed)
	return s, ok
}

// Value is the decoded body of a commit: *Signed or *Anchor.
type Value interface {
	isCommitValue()
}

// Signed is a signed commit body: an envelope over payload bytes in the
// JWS compact style. Payload and Protected hold the raw (un-encoded) bytes;
// the signing input is b64url(Protected) ++ "." ++ b64url(Payload).
type Signed struct {
	Payload    []byte
	Protected  []byte
	Signature  []byte
	Controller string
	Capability *Capability
}

func (*Signed) isCommitValue() {}

// Anchor is a proof-of-inclusion commit body.
type Anchor struct {
	Proof cid.Cid
	Path  string
}

func (*Anchor) isCommitValue() {}

// envelope is the wire shape of a commit block (dag-json). Signed commits
// carry payload/protected/signature; anchor commits carry prev/proof/path.
type envelope struct {
	Payload    string      `json:"payload,omitempty"`
	Protected  string      `json:"protected,omitempty"`
	Signature  string      `json:"signature,omitempty"`
	Capability *Capability `json:"capability,omitempty"`

	Prev  string `json:"prev,omitempty"`
	Proof string `json:"proof,omitempty"`
	Path  string `json:"path,omitempty"`
}

// protectedHeader is the decoded protected header of a signed envelope.
type protectedHeader struct {
	Alg string `json:"alg"`
	Kid string `json:"kid"`
}

var b64 = base64.RawURLEncoding

// DecodeCommit parses a commit block into its decoded form. The prev link of
// a signed commit lives inside its payload; the anchor form carries it on the
// envelope itself.
func DecodeCommit(c cid.Cid, raw []byte) (Commit, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Commit{}, fmt.Errorf("decode commit %s: %w", c, err)
	}

	if env.Proof != "" {
		return decodeAnchor(c, raw, env)
	}
	if env.Payload != "" && env.Signature != "" {
		return decodeSigned(c, raw, env)
	}
	return Commit{}, fmt.Errorf("decode commit %s: unrecognized envelope", c)
}

func decodeAnchor(c cid.Cid, raw []byte, env envelope) (Commit, error) {
	if env.Prev == "" {
		return Commit{}, fmt.Errorf("decode commit %s: anchor commit missing prev", c)
	}
	prev, err := cid.Parse(env.Prev)
	if err != nil {
		return Commit{}, fmt.Errorf("decode commit %s: parse prev: %w", c, err)
	}
	proof, err := cid.Parse(env.Proof)
	if err != nil {
		return Commit{}, fmt.Errorf("decode commit %s: parse proof: %w", c, err)
	}
	return Commit{
		CID:   c,
		Prev:  &prev,
		Value: &Anchor{Proof: proof, Path: env.Path},
		Raw:   raw,
	}, nil
}

func decodeSigned(c cid.Cid, raw []byte, env envelope) (Commit, error) {
	payload, err := b64.DecodeString(env.Payload)
	if err != nil {
		return Commit{}, fmt.Errorf("decode commit %s: payload: %w", c, err)
	}
	protected, err := b64.DecodeString(env.Protected)
	if err != nil {
		return Commit{}, fmt.Errorf("decode commit %s: protected header: %w", c, err)
	}
	signature, err := b64.DecodeString(env.Signature)
	if err != nil {
		return Commit{}, fmt.Errorf("decode commit %s: signature: %w", c, err)
	}

	var header protectedHeader
	if err := json.Unmarshal(protected, &header); err != nil {
		return Commit{}, fmt.Errorf("decode commit %s: protected header: %w", c, err)
	}
	controller, _, _ := cutFragment(header.Kid)

	body, err := decodePayload(payload)
	if err != nil {
		return Commit{}, fmt.Errorf("decode commit %s: %w", c, err)
	}

	var prev *cid.Cid
	if body.Prev != "" {
		p, err := cid.Parse(body.Prev)
		if err != nil {
			return Commit{}, fmt.Errorf("decode commit %s: parse payload prev: %w", c, err)
		}
		prev = &p
	}

	return Commit{
		CID:  c,
		Prev: prev,
		Value: &Signed{
			Payload:    payload,
			Protected:  protected,
			Signature:  signature,
			Controller: controller,
			Capability: env.Capability,
		},
		Raw: raw,
	}, nil
}

// cutFragment splits a DID URL at its fragment: "did:key:z6...#z6..." yields
// the bare DID and the fragment.
func cutFragment(didURL string) (did, fragment string, found bool) {
	for i := 0; i < len(didURL); i++ {
		if didURL[i] == '#' {
			return didURL[:i], didURL[i+1:], true
		}
	}
	return didURL, "", false
}
