package utils

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/crypto/sha3"
)

// CartFingerprint hashes the cart contents plus the customer identity into
// the dedup fingerprint. The line order is canonicalized so equivalent carts
// always produce the same fingerprint.
func CartFingerprint(lines map[string]int, customerEmail string) string {
	types := make([]string, 0, len(lines))
	for t := range lines {
		types = append(types, t)
	}
	sort.Strings(types)

	var b strings.Builder
	for _, t := range types {
		fmt.Fprintf(&b, "%s:%d;", t, lines[t])
	}
	b.WriteString(strings.ToLower(strings.TrimSpace(customerEmail)))

	sum := sha3.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
