package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"concord/internal/pkg/randx"
)

// PGUserStore is the Postgres-backed implementation of UserStore.
type PGUserStore struct {
	pool *pgxpool.Pool
}

// NewPGUserStore wraps the given pool in a PGUserStore.
func NewPGUserStore(pool *pgxpool.Pool) *PGUserStore {
	return &PGUserStore{pool: pool}
}

func (s *PGUserStore) FindByName(ctx context.Context, name string) (*UserRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT name, email, password_hash, dob, joined, avatar_url, role
		 FROM users WHERE name = $1`, name)

	var rec UserRecord
	err := row.Scan(&rec.Name, &rec.Email, &rec.PasswordHash, &rec.DOB, &rec.Joined, &rec.AvatarURL, &rec.Role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user by name: %w", err)
	}

	return &rec, nil
}

func (s *PGUserStore) Create(ctx context.Context, rec UserRecord) error {
	role := rec.Role
	if role == "" {
		role = "user"
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (name, email, password_hash, dob, avatar_url, role)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.Name, rec.Email, rec.PasswordHash, rec.DOB, rec.AvatarURL, role)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create user: %w", err)
	}

	return nil
}

func (s *PGUserStore) ExistsByNameOrEmail(ctx context.Context, name, email string) (bool, error) {
	if name == "" && email == "" {
		return false, nil
	}

	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
		    SELECT 1 FROM users
		    WHERE ($1 <> '' AND name = $1) OR ($2 <> '' AND email = $2)
		 )`, name, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check user existence: %w", err)
	}

	return exists, nil
}

func (s *PGUserStore) UpdateAvatar(ctx context.Context, name, avatarURL string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET avatar_url = $2 WHERE name = $1`, name, avatarURL)
	if err != nil {
		return fmt.Errorf("update avatar: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *PGUserStore) UpdateEmail(ctx context.Context, name, email string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET email = $2 WHERE name = $1`, name, email)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("update email: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// PGMessageStore is the Postgres-backed implementation of MessageStore.
// Reactions are stored as a jsonb column holding the full reaction set;
// the connection core rewrites the whole set on every reaction change.
type PGMessageStore struct {
	pool *pgxpool.Pool
}

// NewPGMessageStore wraps the given pool in a PGMessageStore.
func NewPGMessageStore(pool *pgxpool.Pool) *PGMessageStore {
	return &PGMessageStore{pool: pool}
}

// tableFor maps a scope onto its table name. Scope values come from
// ParseScope, never raw client input, so this cannot inject.
func tableFor(scope Scope) string {
	if scope == ScopePrivate {
		return "private_messages"
	}
	return "community_messages"
}

func (s *PGMessageStore) InsertCommunity(ctx context.Context, sender, text, image string) (Message, error) {
	msg := Message{
		ID:        randx.MessageID(),
		Sender:    sender,
		Text:      text,
		Image:     image,
		Reactions: []Reaction{},
		Timestamp: time.Now().UTC(),
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO community_messages (id, sender, text, image, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		msg.ID, msg.Sender, msg.Text, msg.Image, msg.Timestamp)
	if err != nil {
		return Message{}, fmt.Errorf("insert community message: %w", err)
	}

	return msg, nil
}

func (s *PGMessageStore) InsertPrivate(ctx context.Context, sender, recipient, text, image string) (Message, error) {
	msg := Message{
		ID:        randx.MessageID(),
		Sender:    sender,
		Recipient: recipient,
		Text:      text,
		Image:     image,
		Reactions: []Reaction{},
		Timestamp: time.Now().UTC(),
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO private_messages (id, sender, recipient, text, image, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.Sender, msg.Recipient, msg.Text, msg.Image, msg.Timestamp)
	if err != nil {
		return Message{}, fmt.Errorf("insert private message: %w", err)
	}

	return msg, nil
}

func (s *PGMessageStore) CommunityHistory(ctx context.Context, limit int) ([]Message, error) {
	// Inner query selects the newest N, outer query restores ascending order.
	rows, err := s.pool.Query(ctx,
		`SELECT id, sender, '' AS recipient, text, image, reactions, created_at FROM (
		    SELECT id, sender, text, image, reactions, created_at
		    FROM community_messages
		    ORDER BY created_at DESC
		    LIMIT $1
		 ) recent ORDER BY created_at ASC`, limit)
	if err != nil {
		return nil, fmt.Errorf("query community history: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

func (s *PGMessageStore) PrivateHistory(ctx context.Context, a, b string, limit int) ([]Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, sender, recipient, text, image, reactions, created_at FROM (
		    SELECT id, sender, recipient, text, image, reactions, created_at
		    FROM private_messages
		    WHERE (sender = $1 AND recipient = $2) OR (sender = $2 AND recipient = $1)
		    ORDER BY created_at DESC
		    LIMIT $3
		 ) recent ORDER BY created_at ASC`, a, b, limit)
	if err != nil {
		return nil, fmt.Errorf("query private history: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

func (s *PGMessageStore) FindByID(ctx context.Context, scope Scope, id string) (*Message, error) {
	var query string
	if scope == ScopePrivate {
		query = `SELECT id, sender, recipient, text, image, reactions, created_at
		         FROM private_messages WHERE id = $1`
	} else {
		query = `SELECT id, sender, '' AS recipient, text, image, reactions, created_at
		         FROM community_messages WHERE id = $1`
	}

	row := s.pool.QueryRow(ctx, query, id)

	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find message by id: %w", err)
	}

	return &msg, nil
}

func (s *PGMessageStore) UpdateReactions(ctx context.Context, scope Scope, id string, reactions []Reaction) error {
	if reactions == nil {
		reactions = []Reaction{}
	}

	payload, err := json.Marshal(reactions)
	if err != nil {
		return fmt.Errorf("marshal reactions: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET reactions = $2 WHERE id = $1`, tableFor(scope)),
		id, payload)
	if err != nil {
		return fmt.Errorf("update reactions: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *PGMessageStore) DeleteByID(ctx context.Context, scope Scope, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, tableFor(scope)), id)
	if err != nil {
		return false, fmt.Errorf("delete message: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

func (s *PGMessageStore) DeleteAllCommunity(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM community_messages`)
	if err != nil {
		return 0, fmt.Errorf("clear community messages: %w", err)
	}

	return tag.RowsAffected(), nil
}

// rowScanner covers both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (Message, error) {
	var (
		msg          Message
		reactionsRaw []byte
	)

	if err := row.Scan(&msg.ID, &msg.Sender, &msg.Recipient, &msg.Text, &msg.Image, &reactionsRaw, &msg.Timestamp); err != nil {
		return Message{}, err
	}

	msg.Reactions = []Reaction{}
	if len(reactionsRaw) > 0 {
		if err := json.Unmarshal(reactionsRaw, &msg.Reactions); err != nil {
			return Message{}, fmt.Errorf("decode reactions: %w", err)
		}
	}

	return msg, nil
}

func scanMessages(rows pgx.Rows) ([]Message, error) {
	messages := []Message{}

	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return messages, nil
}
