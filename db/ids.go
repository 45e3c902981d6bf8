package db

import (
	"crypto/rand"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// crockfordAlphabet is Douglas Crockford's base32 alphabet: 0-9 and
// A-Z minus I, L, O, U, chosen to avoid visual ambiguity. Grounded on the
// same encoding technique used by the teacher's internal/store/ids.go
// (there applied to UUIDv7 bits; here applied to a ULID timestamp and to
// pure random bits, per spec.md §4.11).
const crockfordAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

const (
	ulidTimeChars   = 10
	ulidRandomChars = 16
	ulidLength      = ulidTimeChars + ulidRandomChars
	defaultUIDChars = 10
)

// encodeCrockford renders value as a fixed-width, zero-padded base32 string
// of numChars characters, most-significant digit first.
func encodeCrockford(value uint64, numChars int) string {
	buf := make([]byte, numChars)
	for i := numChars - 1; i >= 0; i-- {
		buf[i] = crockfordAlphabet[value&0x1f]
		value >>= 5
	}

	return string(buf)
}

// randomCrockford returns n characters of cryptographically random base32.
// Masking a random byte with 0x1f is unbiased because 256 is an exact
// multiple of 32.
func randomCrockford(n int) (string, error) {
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}

	buf := make([]byte, n)
	for i, b := range raw {
		buf[i] = crockfordAlphabet[b&0x1f]
	}

	return string(buf), nil
}

// newULID returns a 26-character ULID: 10 characters of ms-since-epoch
// timestamp followed by 16 characters of random base32. Monotonicity
// within a single millisecond is not guaranteed across calls, matching
// spec.md §4.11.
func newULID(now time.Time) (string, error) {
	ms := uint64(now.UnixMilli())

	random, err := randomCrockford(ulidRandomChars)
	if err != nil {
		return "", err
	}

	return encodeCrockford(ms, ulidTimeChars) + random, nil
}

// newUID returns n characters of cryptographically random base32 (default
// 10, per spec.md §4.11's uid(N)).
func newUID(n int) (string, error) {
	if n <= 0 {
		n = defaultUIDChars
	}

	return randomCrockford(n)
}

// parseGenerate interprets a field's `generate` attribute: "ulid", "uid",
// or "uid(N)".
func parseGenerate(spec string) (generator func() (string, error), ok bool) {
	switch {
	case spec == "ulid":
		return func() (string, error) { return newULID(time.Now()) }, true
	case spec == "uid":
		return func() (string, error) { return newUID(defaultUIDChars) }, true
	case strings.HasPrefix(spec, "uid(") && strings.HasSuffix(spec, ")"):
		inner := spec[len("uid(") : len(spec)-1]
		n, err := strconv.Atoi(strings.TrimSpace(inner))
		if err != nil || n <= 0 {
			return nil, false
		}

		return func() (string, error) { return newUID(n) }, true
	default:
		return nil, false
	}
}

// validateGenerateSpec is used at schema-build time to reject a malformed
// `generate` attribute early, with the same error shape a bad value would
// produce at mutation time.
func validateGenerateSpec(fieldName, spec string) error {
	if _, ok := parseGenerate(spec); !ok {
		return wrap(KindBadArgs, fmt.Errorf("field %q: invalid generate spec %q", fieldName, spec))
	}

	return nil
}
