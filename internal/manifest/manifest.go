// SPDX-License-Identifier: MIT

// Package manifest defines the video manifest document and its strict
// parse/serialize contract.
package manifest

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrParse wraps every error produced while decoding a manifest document.
	ErrParse = errors.New("manifest: parse error")

	versionPattern = regexp.MustCompile(`^v(\d+)\.(\d+)\.(\d+)$`)
	sha256Pattern  = regexp.MustCompile(`^[0-9a-f]{64}$`)
)

// Version is a (major, minor, revision) triple. Its canonical text form is
// "vMAJOR.MINOR.REVISION".
type Version struct {
	Major    uint64
	Minor    uint64
	Revision uint64
}

func (v Version) String() string {
	return fmt.Sprintf("v%d.%d.%d", v.Major, v.Minor, v.Revision)
}

// ParseVersion parses the canonical text form of a Version.
func ParseVersion(s string) (Version, error) {
	m := versionPattern.FindStringSubmatch(s)
	if m == nil {
		return Version{}, fmt.Errorf("%w: malformed version %q", ErrParse, s)
	}
	var v Version
	if _, err := fmt.Sscan(m[1], &v.Major); err != nil {
		return Version{}, fmt.Errorf("%w: version major: %v", ErrParse, err)
	}
	if _, err := fmt.Sscan(m[2], &v.Minor); err != nil {
		return Version{}, fmt.Errorf("%w: version minor: %v", ErrParse, err)
	}
	if _, err := fmt.Sscan(m[3], &v.Revision); err != nil {
		return Version{}, fmt.Errorf("%w: version revision: %v", ErrParse, err)
	}
	return v, nil
}

func (v Version) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

func (v *Version) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: version: %v", ErrParse, err)
	}
	parsed, err := ParseVersion(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Sha256 is a 32-byte digest whose canonical text form is 64 lower-case hex
// characters.
type Sha256 [32]byte

func (s Sha256) String() string {
	return fmt.Sprintf("%x", [32]byte(s))
}

// ParseSha256 parses the canonical hex text form of a digest.
func ParseSha256(s string) (Sha256, error) {
	if !sha256Pattern.MatchString(s) {
		return Sha256{}, fmt.Errorf("%w: malformed sha256 %q", ErrParse, s)
	}
	var out Sha256
	if _, err := fmt.Sscanf(s, "%x", &out); err != nil {
		return Sha256{}, fmt.Errorf("%w: sha256: %v", ErrParse, err)
	}
	return out, nil
}

// Equal reports whether two digests hold the same bytes, comparing in
// constant time.
func (s Sha256) Equal(other Sha256) bool {
	return subtle.ConstantTimeCompare(s[:], other[:]) == 1
}

func (s Sha256) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Sha256) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("%w: sha256: %v", ErrParse, err)
	}
	parsed, err := ParseSha256(str)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Date is a calendar date with "YYYY-MM-DD" text form.
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

func (d Date) String() string {
	return d.Time.Format(dateLayout)
}

// Before reports whether d is strictly earlier than other, by calendar date.
func (d Date) Before(other Date) bool {
	return d.Time.Before(other.Time)
}

// Equal reports whether d and other denote the same calendar date.
func (d Date) Equal(other Date) bool {
	return d.Time.Equal(other.Time)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: date: %v", ErrParse, err)
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return fmt.Errorf("%w: malformed date %q", ErrParse, s)
	}
	d.Time = t
	return nil
}

// Video is one entry in a manifest section.
type Video struct {
	Name     string    `json:"name"`
	ID       uuid.UUID `json:"id"`
	URI      string    `json:"uri"`
	Sha256   Sha256    `json:"sha256"`
	FileSize uint64    `json:"file_size"`
}

// Section is an ordered group of videos sharing a display name.
type Section struct {
	Name    string  `json:"name"`
	Content []Video `json:"content"`
}

// Manifest is the immutable document describing everything that should be
// mirrored locally.
type Manifest struct {
	Name     string    `json:"name"`
	Date     Date      `json:"date"`
	Version  Version   `json:"version"`
	Sections []Section `json:"sections"`
}

// Equal reports structural equality on all fields, including order.
func (m Manifest) Equal(other Manifest) bool {
	if m.Name != other.Name || !m.Date.Equal(other.Date) || m.Version != other.Version {
		return false
	}
	if len(m.Sections) != len(other.Sections) {
		return false
	}
	for i, s := range m.Sections {
		o := other.Sections[i]
		if s.Name != o.Name || len(s.Content) != len(o.Content) {
			return false
		}
		for j, v := range s.Content {
			ov := o.Content[j]
			if v.Name != ov.Name || v.ID != ov.ID || v.URI != ov.URI || v.FileSize != ov.FileSize || !v.Sha256.Equal(ov.Sha256) {
				return false
			}
		}
	}
	return true
}

// Parse strictly decodes a manifest document. Unknown fields are ignored.
// A video without an id, malformed version/sha256/date values, or
// duplicate video IDs produce an error wrapping ErrParse. No other field
// is checked for presence: an absent name, date, version, sections, uri,
// sha256 or file_size decodes to its zero value without an error.
func Parse(data []byte) (Manifest, error) {
	var m Manifest
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&m); err != nil {
		return Manifest{}, fmt.Errorf("%w: %v", ErrParse, err)
	}

	seen := make(map[uuid.UUID]struct{})
	for _, section := range m.Sections {
		for _, v := range section.Content {
			if v.ID == uuid.Nil {
				return Manifest{}, fmt.Errorf("%w: video %q missing id", ErrParse, v.Name)
			}
			if _, dup := seen[v.ID]; dup {
				return Manifest{}, fmt.Errorf("%w: duplicate video id %s", ErrParse, v.ID)
			}
			seen[v.ID] = struct{}{}
		}
	}
	return m, nil
}

// Serialize produces canonical JSON with fields in a fixed order and
// sections/content preserved in input order.
func Serialize(m Manifest) ([]byte, error) {
	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("manifest: serialize: %w", err)
	}
	return out, nil
}
