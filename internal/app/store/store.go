/*
Package store defines the persistence boundary of the chat server: the message
and user records, and the UserStore/MessageStore interfaces the connection core
consumes. A Postgres implementation backs production; an in-memory
implementation backs tests.
*/
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrDuplicate is returned when a unique constraint (username, email) is violated.
	ErrDuplicate = errors.New("store: duplicate record")
)

// Scope selects which message collection an operation targets.
type Scope string

const (
	// ScopeCommunity targets the shared community channel.
	ScopeCommunity Scope = "community"

	// ScopePrivate targets one-to-one private conversations.
	ScopePrivate Scope = "private"
)

// ParseScope maps the wire-level messageType string onto a Scope.
func ParseScope(s string) (Scope, bool) {
	switch Scope(s) {
	case ScopeCommunity, ScopePrivate:
		return Scope(s), true
	default:
		return "", false
	}
}

// Reaction is a single emoji reaction left by a user on a message.
// A message holds at most one reaction per distinct user.
type Reaction struct {
	Emoji string `json:"emoji"`
	User  string `json:"user"`
}

// Message is a persisted chat message, community or private. An empty
// Recipient marks a community message. At least one of Text/Image is set;
// the router rejects empty messages before they reach the store.
type Message struct {
	ID        string     `json:"id"`
	Sender    string     `json:"sender"`
	Recipient string     `json:"recipient,omitempty"`
	Text      string     `json:"text,omitempty"`
	Image     string     `json:"image,omitempty"`
	Reactions []Reaction `json:"reactions"`
	Timestamp time.Time  `json:"timestamp"`
}

// UserRecord is the authoritative account record held by the user store.
type UserRecord struct {
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	DOB          *time.Time `json:"dob,omitempty"`
	Joined       time.Time  `json:"joined"`
	AvatarURL    string     `json:"profilePicture,omitempty"`
	Role         string     `json:"role"`
}

// UserStore is the external collaborator owning account records.
type UserStore interface {
	// FindByName returns the account with the given username, or ErrNotFound.
	FindByName(ctx context.Context, name string) (*UserRecord, error)

	// Create inserts a new account. Returns ErrDuplicate if the username or
	// email is already taken.
	Create(ctx context.Context, rec UserRecord) error

	// ExistsByNameOrEmail reports whether any account matches the given
	// username or email; empty arguments are skipped.
	ExistsByNameOrEmail(ctx context.Context, name, email string) (bool, error)

	// UpdateAvatar sets the avatar URL of the named account.
	UpdateAvatar(ctx context.Context, name, avatarURL string) error

	// UpdateEmail changes the email of the named account. Returns ErrDuplicate
	// if the email is already taken.
	UpdateEmail(ctx context.Context, name, email string) error
}

// MessageStore is the external collaborator owning message records, split into
// a community collection and a private collection.
type MessageStore interface {
	// InsertCommunity persists a community message and returns it with the
	// generated id and timestamp filled in.
	InsertCommunity(ctx context.Context, sender, text, image string) (Message, error)

	// InsertPrivate persists a private message between sender and recipient.
	InsertPrivate(ctx context.Context, sender, recipient, text, image string) (Message, error)

	// CommunityHistory returns the most recent community messages, ordered
	// ascending by creation time.
	CommunityHistory(ctx context.Context, limit int) ([]Message, error)

	// PrivateHistory returns the conversation between a and b (messages sent
	// in either direction), ordered ascending by creation time.
	PrivateHistory(ctx context.Context, a, b string, limit int) ([]Message, error)

	// FindByID returns the message with the given id in the given scope,
	// or ErrNotFound.
	FindByID(ctx context.Context, scope Scope, id string) (*Message, error)

	// UpdateReactions replaces the reaction set of the given message.
	UpdateReactions(ctx context.Context, scope Scope, id string, reactions []Reaction) error

	// DeleteByID removes the message with the given id. The bool reports
	// whether a record was actually deleted.
	DeleteByID(ctx context.Context, scope Scope, id string) (bool, error)

	// DeleteAllCommunity removes every community message and returns the count.
	DeleteAllCommunity(ctx context.Context) (int64, error)
}
