package randx

import "testing"

func TestIDsAreUniqueAndValid(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		for _, id := range []string{UserID(), MessageID()} {
			if !IsValidID(id) {
				t.Fatalf("generated invalid id %q", id)
			}
			if _, dup := seen[id]; dup {
				t.Fatalf("duplicate id %q", id)
			}
			seen[id] = struct{}{}
		}
	}
}

func TestIsValidIDRejectsGarbage(t *testing.T) {
	for _, id := range []string{"", "system", "guest_abc123"} {
		if IsValidID(id) {
			t.Errorf("IsValidID(%q) = true", id)
		}
	}
}
