package utils

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ID prefixes
const (
	PaymentIDPrefix = "pay"
	RefundIDPrefix  = "rfnd"
)

// GenerateID returns prefix + "_" + 16 lowercase hex characters from a
// cryptographically strong random source, e.g. "pay_3f9c0a1b2d4e5f67".
func GenerateID(prefix string) string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing means the process is in no state to continue
		panic(fmt.Sprintf("failed to read random bytes: %v", err))
	}
	return prefix + "_" + hex.EncodeToString(b)
}

// IsDuplicateKeyErr reports whether err is a unique-constraint violation.
// ID allocation relies on the primary key constraint and regenerates on
// conflict instead of checking existence up front.
func IsDuplicateKeyErr(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
