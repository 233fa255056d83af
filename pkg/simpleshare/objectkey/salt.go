package objectkey

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"time"
)

// RandomBytes is the number of random bytes carried by a Salt.
const RandomBytes = 6

// Salt makes a storage key unique. It pairs the creation time with random bytes
// and carries no other meaning.
type Salt struct {
	Timestamp time.Time
	Random    []byte
}

// NewSalt returns a fresh salt stamped with now, reading random bytes from r.
// A nil reader means crypto/rand.
func NewSalt(now time.Time, r io.Reader) (Salt, error) {
	if r == nil {
		r = rand.Reader
	}
	b := make([]byte, RandomBytes)
	if _, err := io.ReadFull(r, b); err != nil {
		return Salt{}, fmt.Errorf("failed to read salt randomness: %w", err)
	}
	return Salt{Timestamp: now, Random: b}, nil
}

// String renders the salt as <decimal-milliseconds>-<random-hex>.
func (s Salt) String() string {
	return strconv.FormatInt(s.Timestamp.UnixMilli(), 10) + "-" + hex.EncodeToString(s.Random)
}

// parseSalt rebuilds a Salt from the two segments isolated by Decode.
func parseSalt(millis, random string) (Salt, error) {
	if millis == "" || !isDecimal(millis) {
		return Salt{}, fmt.Errorf("%w: timestamp segment %q is not decimal", ErrMalformedKey, millis)
	}
	ms, err := strconv.ParseInt(millis, 10, 64)
	if err != nil {
		return Salt{}, fmt.Errorf("%w: timestamp segment %q: %v", ErrMalformedKey, millis, err)
	}
	if random == "" || !isLowerHex(random) || len(random)%2 != 0 {
		return Salt{}, fmt.Errorf("%w: random segment %q is not hex", ErrMalformedKey, random)
	}
	b, err := hex.DecodeString(random)
	if err != nil {
		return Salt{}, fmt.Errorf("%w: random segment %q: %v", ErrMalformedKey, random, err)
	}
	return Salt{Timestamp: time.UnixMilli(ms).UTC(), Random: b}, nil
}

func isDecimal(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func isLowerHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
