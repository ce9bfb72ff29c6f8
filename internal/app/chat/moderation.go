package chat

import (
	"concord/internal/app/store"
	"concord/internal/app/user"
)

// CanDelete reports whether the requester may delete the given message:
// admins may delete anything, everyone else only their own messages.
func CanDelete(msg store.Message, requester user.Identity) bool {
	if requester.IsAdmin() {
		return true
	}
	return msg.Sender == requester.Name
}

// CanClearAll reports whether the requester may wipe the community channel.
func CanClearAll(requester user.Identity) bool {
	return requester.IsAdmin()
}
