/*
Package user contains the core data structures for user identity.

It defines the Identity struct used to represent a chat participant both
internally and on the wire, and the Role enum driving moderation decisions.
*/
package user

// Role is the account role of a chat participant.
type Role string

const (
	// RoleUser is the default role for registered accounts.
	RoleUser Role = "user"

	// RoleAdmin grants moderation rights: deleting anyone's messages and
	// clearing the community channel.
	RoleAdmin Role = "admin"
)

// ParseRole maps a stored role string onto a Role, defaulting to RoleUser
// for anything unrecognized.
func ParseRole(s string) Role {
	if s == string(RoleAdmin) {
		return RoleAdmin
	}
	return RoleUser
}

// Identity represents the identity of a chat participant as cached on a live
// connection for the duration of its session. The user store owns the
// authoritative record.
type Identity struct {
	// Name is the unique username.
	Name string `json:"name"`

	// Role is the account role ("user" or "admin").
	Role Role `json:"role"`

	// Avatar is the public URL of the profile picture, empty if unset.
	Avatar string `json:"profilePicture,omitempty"`
}

// IsAdmin reports whether the identity holds moderation rights.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}
