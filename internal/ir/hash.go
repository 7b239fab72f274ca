package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainDescriptor = "rtigen/descriptor/v1"
	DomainSource     = "rtigen/source/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// DescriptorHash computes the identity of a problem descriptor from its
// canonical form. Equal descriptors hash equally regardless of key order
// in the source file.
func DescriptorHash(v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("DescriptorHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainDescriptor, canonical), nil
}

// SourceHash computes the identity of emitted target text.
func SourceHash(parts ...[]byte) string {
	h := sha256.New()
	h.Write([]byte(DomainSource))
	h.Write([]byte{0x00})
	for _, p := range parts {
		h.Write(p)
		h.Write([]byte{0x00})
	}
	return hex.EncodeToString(h.Sum(nil))
}
