package domain

import (
	"crypto/rand"
	"fmt"
	"io"
)

// NewUUID generates a random UUID v4.
func NewUUID() string {
	var b [16]byte
	if _, err := io.ReadFull(rand.Reader, b[:]); err != nil {
		// Entropy exhaustion is not recoverable at this level.
		panic(fmt.Sprintf("uuid: %v", err))
	}
	b[6] = b[6]&0x0f | 0x40
	b[8] = b[8]&0x3f | 0x80
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:])
}
