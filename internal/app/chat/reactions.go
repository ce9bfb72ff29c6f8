package chat

import "concord/internal/app/store"

// ApplyReaction merges one user's emoji reaction into a message's reaction set
// and returns the updated set. The input slice is never mutated.
//
// Semantics, holding the at-most-one-reaction-per-user invariant:
//   - no prior reaction from the user: the reaction is appended;
//   - a prior reaction with a different emoji: it is replaced in place;
//   - a prior reaction with the same emoji: it is removed (toggle-off).
func ApplyReaction(reactions []store.Reaction, userName, emoji string) []store.Reaction {
	for i, r := range reactions {
		if r.User != userName {
			continue
		}

		if r.Emoji == emoji {
			// Toggle off.
			updated := make([]store.Reaction, 0, len(reactions)-1)
			updated = append(updated, reactions[:i]...)
			updated = append(updated, reactions[i+1:]...)
			return updated
		}

		// Change emoji, keeping the reaction's position.
		updated := append([]store.Reaction{}, reactions...)
		updated[i].Emoji = emoji
		return updated
	}

	updated := append([]store.Reaction{}, reactions...)
	return append(updated, store.Reaction{Emoji: emoji, User: userName})
}
