// Package canonicalize provides RFC 8785 (JSON Canonicalization Scheme) serialization
// for deterministic hashing of ledger records and export bundles.
package canonicalize

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gowebpki/jcs"
)

var (
	// ErrNotCanonicalizable is returned when a value cannot be expressed as canonical JSON.
	ErrNotCanonicalizable = errors.New("canonicalize: value is not canonicalizable")
	// ErrInexactNumber is returned for an integer literal that an IEEE 754 double
	// cannot hold exactly, such as 2^53+1. It wraps ErrNotCanonicalizable.
	ErrInexactNumber = fmt.Errorf("%w: integer is not exactly representable", ErrNotCanonicalizable)
)

// JCS returns the RFC 8785 canonical JSON representation of v.
//
// v is first marshaled with encoding/json so struct tags are honored, then
// transformed: object keys sorted by UTF-16 code units, numbers in ES6 form,
// no insignificant whitespace and no HTML escaping.
func JCS(v interface{}) ([]byte, error) {
	intermediate, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: pre-marshal: %w", ErrNotCanonicalizable, err)
	}
	return Transform(intermediate)
}

// Transform canonicalizes raw JSON bytes. Inputs that differ only in key order,
// whitespace or number spelling produce identical output. Integer literals that
// would change value when read as a double are rejected with ErrInexactNumber.
func Transform(raw []byte) ([]byte, error) {
	if err := checkIntegers(raw); err != nil {
		return nil, err
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotCanonicalizable, err)
	}
	return out, nil
}

// checkIntegers walks every number token. Syntax errors are left to jcs.
func checkIntegers(raw []byte) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return nil
		}
		n, ok := tok.(json.Number)
		if !ok || strings.ContainsAny(n.String(), ".eE") {
			continue
		}
		f, err := strconv.ParseFloat(n.String(), 64)
		if err != nil || strconv.FormatFloat(f, 'f', -1, 64) != n.String() {
			return fmt.Errorf("%w: %s", ErrInexactNumber, n)
		}
	}
}

// HashBytes computes SHA-256 hash of raw bytes and returns hex string
func HashBytes(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
