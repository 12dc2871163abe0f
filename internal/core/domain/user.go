package domain

import "slices"

// UserID uses the same number-or-string JSON form as StreamID.
type UserID string

func (id UserID) String() string { return string(id) }

func (id UserID) MarshalJSON() ([]byte, error) {
	return marshalFlexibleID(string(id))
}

func (id *UserID) UnmarshalJSON(data []byte) error {
	s, err := unmarshalFlexibleID(data)
	if err != nil {
		return err
	}
	*id = UserID(s)
	return nil
}

type Role string

const (
	RoleViewer   Role = "viewer"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleViewer, RoleOperator, RoleAdmin:
		return true
	}
	return false
}

// IsPrivileged reports whether the role may list room members.
func (r Role) IsPrivileged() bool {
	return r == RoleOperator || r == RoleAdmin
}

// OneOf reports whether r is any of roles.
func (r Role) OneOf(roles ...Role) bool {
	return slices.Contains(roles, r)
}

// Identity is what the authenticator resolves a credential to.
type Identity struct {
	UserID      UserID
	DisplayName string
	Email       string
	Role        Role
}

// UserSummary is the public view of an identity carried on presence,
// chat and listing events.
type UserSummary struct {
	ID          UserID `json:"id"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email,omitempty"`
	Role        Role   `json:"role"`
}

func (i Identity) Summary() UserSummary {
	return UserSummary{
		ID:          i.UserID,
		DisplayName: i.DisplayName,
		Email:       i.Email,
		Role:        i.Role,
	}
}
