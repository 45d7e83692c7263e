package idgen

import (
	"regexp"
	"testing"
)

func TestNewIDs_Format(t *testing.T) {
	for _, tc := range []struct {
		name   string
		gen    func() (string, error)
		prefix string
	}{
		{"Session", NewSessionID, SessionPrefix},
		{"Event", NewEventID, EventPrefix},
	} {
		t.Run(tc.name, func(t *testing.T) {
			pattern := regexp.MustCompile(`^` + regexp.QuoteMeta(tc.prefix) + `[a-zA-Z0-9]{8}$`)
			for i := 0; i < 50; i++ {
				id, err := tc.gen()
				if err != nil {
					t.Fatalf("error on iteration %d: %v", i, err)
				}
				if !pattern.MatchString(id) {
					t.Fatalf("id %q does not match %s", id, pattern)
				}
			}
		})
	}
}

func TestNewSessionID_Uniqueness(t *testing.T) {
	const count = 10_000
	seen := make(map[string]struct{}, count)
	for i := 0; i < count; i++ {
		id, err := NewSessionID()
		if err != nil {
			t.Fatalf("NewSessionID() error on iteration %d: %v", i, err)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate ID after %d generations: %q", i, id)
		}
		seen[id] = struct{}{}
	}
}
