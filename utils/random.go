package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// GenerateCode returns 2n uppercase hex characters from crypto/rand.
func GenerateCode(n int) (string, error) {
	byt := make([]byte, n)

	if _, err := rand.Read(byt); err != nil {
		return "", err
	}

	return strings.ToUpper(hex.EncodeToString(byt)), nil
}

// NewTransactionID returns an opaque external transaction id.
func NewTransactionID() (string, error) {
	code, err := GenerateCode(8)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("txn_%s", strings.ToLower(code)), nil
}

// NewTicketID returns an opaque external ticket id.
func NewTicketID() (string, error) {
	code, err := GenerateCode(8)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("tkt_%s", strings.ToLower(code)), nil
}

// NewValidationCode returns the unique redemption credential subject stored
// on a ticket.
func NewValidationCode() (string, error) {
	return GenerateCode(16)
}
