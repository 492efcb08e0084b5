package stream

import (
	"crypto/ed25519"
	"fmt"
	"strings"
	"time"

	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-varint"
)

// Capability is the authorization grant attached to a signed envelope: the
// resource set the signing session was scoped to, and an optional expiration.
type Capability struct {
	Resources  []string   `json:"resources,omitempty"`
	Expiration *time.Time `json:"expiration,omitempty"`
}

// resourcePrefix scopes a capability resource to one model's streams; the
// bare wildcard grants every stream.
const (
	resourcePrefix   = "ceramic://*?model="
	resourceWildcard = "ceramic://*"
)

// grantsModel reports whether the capability's resource set covers model.
func (c *Capability) grantsModel(model ID) bool {
	want := model.String()
	for _, res := range c.Resources {
		if res == resourceWildcard {
			return true
		}
		if rest, ok := strings.CutPrefix(res, resourcePrefix); ok && rest == want {
			return true
		}
	}
	return false
}

// VerifyOption adds one requirement to signature verification.
type VerifyOption func(*verifyPolicy)

type verifyPolicy struct {
	resourceModel *ID
	now           *time.Time
}

// WithResourceModel requires the commit's capability to declare a resource
// set covering the given model. A commit with no capability fails this check.
func WithResourceModel(model ID) VerifyOption {
	return func(p *verifyPolicy) { p.resourceModel = &model }
}

// WithExpirationAfter requires the capability's expiration, when declared,
// to lie strictly after now.
func WithExpirationAfter(now time.Time) VerifyOption {
	return func(p *verifyPolicy) { p.now = &now }
}

// Verify checks the envelope signature and any policy options. Policy
// failures return SIGNATURE_INVALID or COMMIT_EXPIRED; the commit must never
// be applied after a verification failure.
func (s *Signed) Verify(opts ...VerifyOption) error {
	var policy verifyPolicy
	for _, opt := range opts {
		opt(&policy)
	}

	if policy.now != nil && s.Capability != nil && s.Capability.Expiration != nil {
		if !s.Capability.Expiration.After(*policy.now) {
			return NewCommitExpiredError(*s.Capability.Expiration)
		}
	}

	if policy.resourceModel != nil {
		if s.Capability == nil {
			return NewSignatureInvalidError("commit declares no capability resources")
		}
		if !s.Capability.grantsModel(*policy.resourceModel) {
			return NewSignatureInvalidError(fmt.Sprintf(
				"capability resources do not cover model %s", policy.resourceModel))
		}
	}

	pub, err := DecodeKeyDID(s.Controller)
	if err != nil {
		return NewSignatureInvalidError(fmt.Sprintf("controller key: %v", err))
	}
	if !ed25519.Verify(pub, s.signingInput(), s.Signature) {
		return NewSignatureInvalidError("signature does not verify against controller key")
	}
	return nil
}

// signingInput is the JWS compact signing input for the envelope.
func (s *Signed) signingInput() []byte {
	protected := b64.EncodeToString(s.Protected)
	payload := b64.EncodeToString(s.Payload)
	input := make([]byte, 0, len(protected)+1+len(payload))
	input = append(input, protected...)
	input = append(input, '.')
	input = append(input, payload...)
	return input
}

// multicodecEd25519Pub tags an Ed25519 public key in a did:key identifier.
const multicodecEd25519Pub = 0xed

// DecodeKeyDID extracts the Ed25519 public key from a did:key identifier.
func DecodeKeyDID(did string) (ed25519.PublicKey, error) {
	const prefix = "did:key:"
	if !strings.HasPrefix(did, prefix) {
		return nil, fmt.Errorf("not a did:key identifier: %q", did)
	}

	encoding, data, err := multibase.Decode(strings.TrimPrefix(did, prefix))
	if err != nil {
		return nil, fmt.Errorf("decode did:key %q: %w", did, err)
	}
	if encoding != multibase.Base58BTC {
		return nil, fmt.Errorf("decode did:key %q: unexpected multibase encoding %c", did, encoding)
	}

	code, n, err := varint.FromUvarint(data)
	if err != nil {
		return nil, fmt.Errorf("decode did:key %q: read multicodec: %w", did, err)
	}
	if code != multicodecEd25519Pub {
		return nil, fmt.Errorf("decode did:key %q: unsupported key multicodec 0x%x", did, code)
	}

	key := data[n:]
	if len(key) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("decode did:key %q: key is %d bytes, want %d", did, len(key), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(key), nil
}

// EncodeKeyDID renders an Ed25519 public key as a did:key identifier.
func EncodeKeyDID(pub ed25519.PublicKey) string {
	buf := make([]byte, 0, varint.MaxLenUvarint63+len(pub))
	buf = append(buf, varint.ToUvarint(multicodecEd25519Pub)...)
	buf = append(buf, pub...)

	s, err := multibase.Encode(multibase.Base58BTC, buf)
	if err != nil {
		// Base58BTC is compiled into go-multibase; encoding cannot fail.
		panic(err)
	}
	return "did:key:" + s
}
