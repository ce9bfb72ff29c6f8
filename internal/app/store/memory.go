package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"concord/internal/pkg/randx"
)

// MemUserStore is an in-memory UserStore used by tests and local tooling.
type MemUserStore struct {
	mu    sync.RWMutex
	users map[string]UserRecord
}

// NewMemUserStore returns an empty in-memory user store.
func NewMemUserStore() *MemUserStore {
	return &MemUserStore{users: make(map[string]UserRecord)}
}

func (s *MemUserStore) FindByName(ctx context.Context, name string) (*UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.users[name]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (s *MemUserStore) Create(ctx context.Context, rec UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[rec.Name]; ok {
		return ErrDuplicate
	}
	for _, existing := range s.users {
		if existing.Email == rec.Email {
			return ErrDuplicate
		}
	}

	if rec.Role == "" {
		rec.Role = "user"
	}
	if rec.Joined.IsZero() {
		rec.Joined = time.Now().UTC()
	}

	s.users[rec.Name] = rec
	return nil
}

func (s *MemUserStore) ExistsByNameOrEmail(ctx context.Context, name, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if name != "" {
		if _, ok := s.users[name]; ok {
			return true, nil
		}
	}
	if email != "" {
		for _, rec := range s.users {
			if rec.Email == email {
				return true, nil
			}
		}
	}
	return false, nil
}

func (s *MemUserStore) UpdateAvatar(ctx context.Context, name, avatarURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.users[name]
	if !ok {
		return ErrNotFound
	}
	rec.AvatarURL = avatarURL
	s.users[name] = rec
	return nil
}

func (s *MemUserStore) UpdateEmail(ctx context.Context, name, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.users[name]
	if !ok {
		return ErrNotFound
	}
	for other, existing := range s.users {
		if other != name && existing.Email == email {
			return ErrDuplicate
		}
	}
	rec.Email = email
	s.users[name] = rec
	return nil
}

// MemMessageStore is an in-memory MessageStore used by tests.
type MemMessageStore struct {
	mu        sync.RWMutex
	community []Message
	private   []Message

	// FailNext forces the next mutating call to fail with the given error,
	// letting tests exercise the no-broadcast-on-store-failure contract.
	FailNext error
}

// NewMemMessageStore returns an empty in-memory message store.
func NewMemMessageStore() *MemMessageStore {
	return &MemMessageStore{}
}

func (s *MemMessageStore) takeFailure() error {
	err := s.FailNext
	s.FailNext = nil
	return err
}

func (s *MemMessageStore) InsertCommunity(ctx context.Context, sender, text, image string) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure(); err != nil {
		return Message{}, err
	}

	msg := Message{
		ID:        randx.MessageID(),
		Sender:    sender,
		Text:      text,
		Image:     image,
		Reactions: []Reaction{},
		Timestamp: time.Now().UTC(),
	}
	s.community = append(s.community, msg)
	return msg, nil
}

func (s *MemMessageStore) InsertPrivate(ctx context.Context, sender, recipient, text, image string) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure(); err != nil {
		return Message{}, err
	}

	msg := Message{
		ID:        randx.MessageID(),
		Sender:    sender,
		Recipient: recipient,
		Text:      text,
		Image:     image,
		Reactions: []Reaction{},
		Timestamp: time.Now().UTC(),
	}
	s.private = append(s.private, msg)
	return msg, nil
}

func (s *MemMessageStore) CommunityHistory(ctx context.Context, limit int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return tailSorted(s.community, limit), nil
}

func (s *MemMessageStore) PrivateHistory(ctx context.Context, a, b string, limit int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := []Message{}
	for _, msg := range s.private {
		if (msg.Sender == a && msg.Recipient == b) || (msg.Sender == b && msg.Recipient == a) {
			matched = append(matched, msg)
		}
	}
	return tailSorted(matched, limit), nil
}

func (s *MemMessageStore) FindByID(ctx context.Context, scope Scope, id string) (*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, msg := range s.collection(scope) {
		if msg.ID == id {
			found := msg
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemMessageStore) UpdateReactions(ctx context.Context, scope Scope, id string, reactions []Reaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure(); err != nil {
		return err
	}

	coll := s.collection(scope)
	for i := range coll {
		if coll[i].ID == id {
			coll[i].Reactions = append([]Reaction{}, reactions...)
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemMessageStore) DeleteByID(ctx context.Context, scope Scope, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure(); err != nil {
		return false, err
	}

	coll := s.collection(scope)
	for i := range coll {
		if coll[i].ID == id {
			if scope == ScopePrivate {
				s.private = append(s.private[:i], s.private[i+1:]...)
			} else {
				s.community = append(s.community[:i], s.community[i+1:]...)
			}
			return true, nil
		}
	}
	return false, nil
}

func (s *MemMessageStore) DeleteAllCommunity(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure(); err != nil {
		return 0, err
	}

	count := int64(len(s.community))
	s.community = nil
	return count, nil
}

func (s *MemMessageStore) collection(scope Scope) []Message {
	if scope == ScopePrivate {
		return s.private
	}
	return s.community
}

func tailSorted(messages []Message, limit int) []Message {
	sorted := append([]Message{}, messages...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	if limit > 0 && len(sorted) > limit {
		sorted = sorted[len(sorted)-limit:]
	}
	return sorted
}
