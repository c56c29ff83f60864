package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/protocol"
	"log/slog"

	"github.com/samber/lo"
)

// UserListBroadcaster pushes the whole membership list to every session.
// It runs after each join and each leave; there is no diffing.
type UserListBroadcaster struct {
	registry  contract.IRegistry
	observers []contract.IUserListObserver
	log       *slog.Logger
}

func NewUserListBroadcaster(log *slog.Logger, registry contract.IRegistry,
	observers ...contract.IUserListObserver) *UserListBroadcaster {
	return &UserListBroadcaster{registry: registry, observers: observers, log: log}
}

// Broadcast snapshots the registry and sends under the same lock acquisition,
// so the list a client receives is never older than a concurrent change.
func (b *UserListBroadcaster) Broadcast() {
	var users []domain.UserEntry
	b.registry.Fanout(func(sessions []contract.Session) {
		users = lo.Map(sessions, func(s contract.Session, _ int) domain.UserEntry {
			return s.UserEntry()
		})
		line := protocol.MustEncode(domain.UserListSnapshot{Entries: users})
		for _, s := range sessions {
			if err := s.Conn.WriteFrame(line); err != nil {
				b.log.Debug("Dropping user list", "recipient", s.Alias, "error", err)
			}
		}
	})
	for _, o := range b.observers {
		o.PublishUsers(users)
	}
}
