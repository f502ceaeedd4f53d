package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"

	"github.com/ringline/ringline-server/internal/core"
)

const macLen = sha256.Size

var (
	ErrMalformedCredential = errors.New("credential material malformed")
	ErrBadSignature        = errors.New("credential signature mismatch")
)

// HMACVerifier implements core.CredentialVerifier against a shared secret.
// Membership proofs and credential presentations are payload bytes followed
// by an HMAC-SHA256 tag over the payload. The payload itself stays opaque;
// only the tag is interpreted here.
type HMACVerifier struct {
	secret []byte
}

// NewHMACVerifier builds a verifier keyed by secret.
func NewHMACVerifier(secret []byte) *HMACVerifier {
	return &HMACVerifier{secret: append([]byte(nil), secret...)}
}

// VerifyIdentityKeys checks key material shape. Identity keys are issued by
// the platform's key store, so only structural validation happens here.
func (v *HMACVerifier) VerifyIdentityKeys(sender, receiver []byte) error {
	if !plausibleIdentityKey(sender) || !plausibleIdentityKey(receiver) {
		return ErrMalformedCredential
	}
	return nil
}

// VerifyMembershipProof checks the HMAC tag on a membership proof.
func (v *HMACVerifier) VerifyMembershipProof(proof []byte) error {
	return v.verifyTagged(proof)
}

// VerifyCredentialPresentation checks the HMAC tag on a presentation.
func (v *HMACVerifier) VerifyCredentialPresentation(presentation []byte) error {
	return v.verifyTagged(presentation)
}

func (v *HMACVerifier) verifyTagged(material []byte) error {
	if len(material) <= macLen {
		return ErrMalformedCredential
	}
	payload := material[:len(material)-macLen]
	tag := material[len(material)-macLen:]

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(payload)
	if !hmac.Equal(tag, mac.Sum(nil)) {
		return ErrBadSignature
	}
	return nil
}

// SignCredential appends the HMAC tag to a payload. Used by tests and by
// local tooling that provisions credentials.
func (v *HMACVerifier) SignCredential(payload []byte) []byte {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(payload)
	return mac.Sum(append([]byte(nil), payload...))
}

func plausibleIdentityKey(key []byte) bool {
	switch len(key) {
	case 32, 33, 65:
		return true
	}
	return false
}

var _ core.CredentialVerifier = (*HMACVerifier)(nil)
