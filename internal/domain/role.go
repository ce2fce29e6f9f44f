package domain

import "fmt"

// Role identifies the author of a context entry. It is a closed set:
// knowledge snippets enter as RoleSystem, client input as RoleUser, and
// generated replies as RoleAssistant. External vocabularies (the reply
// generator's two-party naming, stored JSON) are mapped at the boundary
// with ParseRole rather than threading raw strings through the core.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ParseRole maps an external role string onto the closed Role set.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleSystem, RoleUser, RoleAssistant:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Valid reports whether the role is one of the closed set.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

func (r Role) String() string {
	return string(r)
}
