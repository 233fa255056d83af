package objectkey

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxDisplayNameBytes bounds the display name so the resulting key stays well
// under the 1024 byte object key limit of S3 and GCS.
const MaxDisplayNameBytes = 255

var (
	// ErrInvalidDisplayName is returned by Encode for names that cannot be embedded in a key
	ErrInvalidDisplayName = errors.New("objectkey: invalid display name")

	// ErrInvalidSalt is returned by Encode when the salt cannot be serialized reversibly
	ErrInvalidSalt = errors.New("objectkey: invalid salt")

	// ErrMalformedKey is returned by Decode for keys that were not produced by Encode
	ErrMalformedKey = errors.New("objectkey: malformed storage key")
)

// Decoded is the result of decoding a storage key.
type Decoded struct {
	Name string // display name as supplied at upload time
	Base string // Name without Ext
	Ext  string // extension including its leading dot, empty when Name has none
	Salt Salt
}

// HasExtension reports whether the display name carried an extension.
func (d Decoded) HasExtension() bool {
	return d.Ext != ""
}

// SplitExtension splits name at its last '.' into base and extension.
// The extension keeps the dot; a name without a dot has an empty extension.
func SplitExtension(name string) (base, ext string) {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return name, ""
	}
	return name[:i], name[i:]
}

// ValidateDisplayName checks that name can be embedded in a storage key.
func ValidateDisplayName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidDisplayName)
	}
	if len(name) > MaxDisplayNameBytes {
		return fmt.Errorf("%w: name is longer than %d bytes", ErrInvalidDisplayName, MaxDisplayNameBytes)
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("%w: name is not valid UTF-8", ErrInvalidDisplayName)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: name contains control character %U", ErrInvalidDisplayName, r)
		}
	}
	return nil
}

// Encode embeds displayName and salt into a single storage key.
//
// The salt is inserted between the base name and the extension:
//
//	"remuneration-new (1).png" -> "remuneration-new (1)-1718000000000-a1b2c3d4e5f6.png"
//	"notes"                    -> "notes-1718000000000-a1b2c3d4e5f6"
func Encode(displayName string, salt Salt) (string, error) {
	if err := ValidateDisplayName(displayName); err != nil {
		return "", err
	}
	if len(salt.Random) == 0 {
		return "", fmt.Errorf("%w: no random bytes", ErrInvalidSalt)
	}
	if salt.Timestamp.UnixMilli() < 0 {
		return "", fmt.Errorf("%w: timestamp before epoch", ErrInvalidSalt)
	}

	base, ext := SplitExtension(displayName)
	return base + "-" + salt.String() + ext, nil
}

// Decode recovers the display name from a key produced by Encode.
//
// The extension is the suffix from the last '.'. The salt is the last two
// '-'-delimited segments before it. Everything in front of the salt is the
// base name, hyphens included. Segments are located by position only.
func Decode(key string) (Decoded, error) {
	if key == "" {
		return Decoded{}, fmt.Errorf("%w: key is empty", ErrMalformedKey)
	}

	rest, ext := SplitExtension(key)

	i := strings.LastIndexByte(rest, '-')
	if i < 0 {
		return Decoded{}, fmt.Errorf("%w: no salt in %q", ErrMalformedKey, key)
	}
	random := rest[i+1:]
	rest = rest[:i]

	j := strings.LastIndexByte(rest, '-')
	if j < 0 {
		return Decoded{}, fmt.Errorf("%w: no salt timestamp in %q", ErrMalformedKey, key)
	}
	millis := rest[j+1:]
	base := rest[:j]

	salt, err := parseSalt(millis, random)
	if err != nil {
		return Decoded{}, err
	}

	return Decoded{
		Name: base + ext,
		Base: base,
		Ext:  ext,
		Salt: salt,
	}, nil
}
