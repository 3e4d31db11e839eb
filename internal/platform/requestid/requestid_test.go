package requestid

import (
	"strings"
	"testing"

	"github.com/oklog/ulid/v2"
)

func TestNew(t *testing.T) {
	id, err := New()
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	if len(id) != 26 {
		t.Fatalf("New() len=%d, want 26", len(id))
	}
	if id != strings.ToLower(id) {
		t.Fatalf("New()=%q not lowercase", id)
	}
	if _, err := ulid.ParseStrict(strings.ToUpper(id)); err != nil {
		t.Fatalf("New()=%q not a ulid: %v", id, err)
	}

	other, err := New()
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	if other == id {
		t.Fatalf("New() repeated id %q", id)
	}
}
