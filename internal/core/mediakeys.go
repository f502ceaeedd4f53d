package core

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const mediaKeyLen = 32

// newClientSecret seeds per-client media key derivation.
func newClientSecret() ([]byte, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate client secret: %w", err)
	}
	return secret, nil
}

// deriveMediaSendKey derives the outgoing media key for a given rotation
// epoch. The caller-supplied hkdf extra info salts the derivation so
// distinct deployments never converge on the same key schedule.
func deriveMediaSendKey(secret, extraInfo []byte, epoch uint32) ([]byte, error) {
	info := make([]byte, 0, len("ringline media send key")+4+len(extraInfo))
	info = append(info, []byte("ringline media send key")...)
	info = binary.BigEndian.AppendUint32(info, epoch)
	info = append(info, extraInfo...)

	key := make([]byte, mediaKeyLen)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, info), key); err != nil {
		return nil, fmt.Errorf("derive media send key: %w", err)
	}
	return key, nil
}
