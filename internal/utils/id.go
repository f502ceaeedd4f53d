package utils

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// NewRequestID returns a random non-zero correlation id for async flows.
func NewRequestID() uint64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return uint64(time.Now().UnixNano())
	}
	id := binary.BigEndian.Uint64(buf[:])
	if id == 0 {
		id = 1
	}
	return id
}
