// SPDX-License-Identifier: MIT

package manifest

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

func mustDate(t *testing.T, s string) Date {
	t.Helper()
	tm, err := time.Parse(dateLayout, s)
	if err != nil {
		t.Fatalf("parse fixture date: %v", err)
	}
	return Date{Time: tm}
}

func sampleManifest(t *testing.T) Manifest {
	t.Helper()
	sha, err := ParseSha256("9f64a747e1b97f131fabb6b447296c9b6f0201e79fb3c5356e6c77e89b6a806a")
	if err != nil {
		t.Fatalf("parse fixture sha256: %v", err)
	}
	return Manifest{
		Name:    "Algebra I",
		Date:    mustDate(t, "2026-01-15"),
		Version: Version{Major: 1, Minor: 2, Revision: 0},
		Sections: []Section{
			{
				Name: "Quadratics",
				Content: []Video{
					{
						Name:     "Quadratic Equations",
						ID:       uuid.MustParse("5eb9e089-79cf-478d-9121-9ca3e7bb1d4a"),
						URI:      "s3://bucket/quadratic-equations.mp4",
						Sha256:   sha,
						FileSize: 4,
					},
				},
			},
		},
	}
}

func TestParseSerializeRoundTrip(t *testing.T) {
	m := sampleManifest(t)
	data, err := Serialize(m)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	got, err := Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !got.Equal(m) {
		t.Errorf("round trip mismatch:\n%s", cmp.Diff(m, got))
	}
}

func TestParseIgnoresUnknownFields(t *testing.T) {
	data := []byte(`{
		"name": "x", "date": "2026-01-15", "version": "v1.0.0", "extra_field": true,
		"sections": []
	}`)
	if _, err := Parse(data); err != nil {
		t.Fatalf("expected unknown field to be ignored, got: %v", err)
	}
}

func TestParseRejectsDuplicateIDs(t *testing.T) {
	id := "5eb9e089-79cf-478d-9121-9ca3e7bb1d4a"
	data := []byte(`{
		"name": "x", "date": "2026-01-15", "version": "v1.0.0",
		"sections": [
			{"name": "a", "content": [
				{"name":"v1","id":"` + id + `","uri":"file://v1","sha256":"9f64a747e1b97f131fabb6b447296c9b6f0201e79fb3c5356e6c77e89b6a806a","file_size":1},
				{"name":"v2","id":"` + id + `","uri":"file://v2","sha256":"9f64a747e1b97f131fabb6b447296c9b6f0201e79fb3c5356e6c77e89b6a806a","file_size":1}
			]}
		]
	}`)
	_, err := Parse(data)
	if err == nil || !strings.Contains(err.Error(), "duplicate video id") {
		t.Fatalf("expected duplicate id error, got: %v", err)
	}
}

func TestParseRejectsMalformedVersion(t *testing.T) {
	data := []byte(`{"name":"x","date":"2026-01-15","version":"1.0.0","sections":[]}`)
	if _, err := Parse(data); err == nil {
		t.Fatal("expected error for malformed version")
	}
}

func TestParseRejectsMalformedSha256(t *testing.T) {
	data := []byte(`{
		"name": "x", "date": "2026-01-15", "version": "v1.0.0",
		"sections": [{"name":"a","content":[
			{"name":"v1","id":"5eb9e089-79cf-478d-9121-9ca3e7bb1d4a","uri":"file://v1","sha256":"not-hex","file_size":1}
		]}]
	}`)
	if _, err := Parse(data); err == nil {
		t.Fatal("expected error for malformed sha256")
	}
}

func TestDateOrdering(t *testing.T) {
	a := mustDate(t, "2026-01-01")
	b := mustDate(t, "2026-01-02")
	if !a.Before(b) {
		t.Error("expected a before b")
	}
	if a.Before(a) {
		t.Error("date should not be before itself")
	}
}

func TestSha256EqualConstantTime(t *testing.T) {
	a, err := ParseSha256("9f64a747e1b97f131fabb6b447296c9b6f0201e79fb3c5356e6c77e89b6a806a")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	b := a
	if !a.Equal(b) {
		t.Error("expected equal digests to compare equal")
	}
	b[0] ^= 0xFF
	if a.Equal(b) {
		t.Error("expected differing digests to compare unequal")
	}
}

func TestVersionString(t *testing.T) {
	v := Version{Major: 2, Minor: 1, Revision: 3}
	if v.String() != "v2.1.3" {
		t.Errorf("String() = %q, want v2.1.3", v.String())
	}
}
