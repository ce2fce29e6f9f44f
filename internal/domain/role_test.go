package domain

import "testing"

func TestParseRole(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"system", "user", "assistant"} {
		role, err := ParseRole(s)
		if err != nil {
			t.Fatalf("ParseRole(%q) failed: %v", s, err)
		}
		if role.String() != s {
			t.Fatalf("ParseRole(%q) = %q", s, role)
		}
	}

	for _, s := range []string{"", "bot", "Assistant", "SYSTEM"} {
		if _, err := ParseRole(s); err == nil {
			t.Fatalf("ParseRole(%q) should fail", s)
		}
	}
}

func TestRoleValid(t *testing.T) {
	t.Parallel()

	if !RoleUser.Valid() || !RoleSystem.Valid() || !RoleAssistant.Valid() {
		t.Fatal("closed-set members must be valid")
	}
	if Role("bot").Valid() {
		t.Fatal("roles outside the closed set must be invalid")
	}
}
