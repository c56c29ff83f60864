package runtime

import (
	"chat-relay/contract"
	"chat-relay/errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	minCode      = 100
	maxCode      = 999
	maxAliasSize = 32
)

var validate = validator.New()

// Registry is the table of online aliases.
// Every read and write happens under mu, which makes TryRegister an atomic
// check-then-insert: two connections can never both claim the same alias.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]contract.Session // map alias -> Session
	now      func() time.Time
	code     func() string
}

var _ contract.IRegistry = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]contract.Session),
		now:      time.Now,
		code:     randomCode,
	}
}

// randomCode draws a code in [100,999].
// Two live sessions may share the same code, nothing checks it.
func randomCode() string {
	return fmt.Sprintf("%d", minCode+rand.IntN(maxCode-minCode+1))
}

// ValidateAlias rejects empty and oversized aliases.
func ValidateAlias(alias string) error {
	if err := validate.Var(strings.TrimSpace(alias), fmt.Sprintf("required,max=%d", maxAliasSize)); err != nil {
		return fmt.Errorf("%w: %q", errors.ErrInvalidAlias, alias)
	}
	return nil
}

func (r *Registry) TryRegister(alias string, conn contract.Conn, remoteAddr string) (contract.Session, error) {
	return r.Admit(alias, conn, remoteAddr, nil)
}

// Admit claims alias and runs welcome before the session is stored.
// Fanout waits on the same lock, so nothing reaches the new session before its welcome.
func (r *Registry) Admit(alias string, conn contract.Conn, remoteAddr string, welcome func(contract.Session) error) (contract.Session, error) {
	alias = strings.TrimSpace(alias)
	if err := ValidateAlias(alias); err != nil {
		return contract.Session{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[alias]; ok {
		return contract.Session{}, errors.ErrAliasTaken
	}
	session := contract.Session{
		ID:          uuid.New(),
		Alias:       alias,
		Code:        r.code(),
		RemoteAddr:  remoteAddr,
		ConnectedAt: r.now(),
		Conn:        conn,
	}
	if welcome != nil {
		if err := welcome(session); err != nil {
			return contract.Session{}, err
		}
	}
	r.sessions[alias] = session
	return session, nil
}

// Remove is a no-op when the alias is not registered.
func (r *Registry) Remove(alias string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, alias)
}

func (r *Registry) Lookup(alias string) (contract.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if session, ok := r.sessions[alias]; ok {
		return session, nil
	}
	return contract.Session{}, errors.ErrSessionNotFound
}

// Snapshot returns sessions ordered by registration time, then alias.
func (r *Registry) Snapshot() []contract.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot()
}

// Fanout holds the lock for the whole call so that a broadcast is never
// interleaved with a join or a leave.
func (r *Registry) Fanout(fn func(sessions []contract.Session)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.snapshot())
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) snapshot() []contract.Session {
	res := make([]contract.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		res = append(res, s)
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].ConnectedAt.Equal(res[j].ConnectedAt) {
			return res[i].ConnectedAt.Before(res[j].ConnectedAt)
		}
		return res[i].Alias < res[j].Alias
	})
	return res
}
