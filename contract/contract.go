//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain"
	"context"
	"reflect"
	"time"

	"github.com/google/uuid"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Conn is one client connection carrying encoded frames.
// WriteFrame must be safe for concurrent use: the connection handler and the
// router both write to the same peer.
type Conn interface {
	ReadFrame() (string, error)
	WriteFrame(frame string) error
	RemoteAddr() string
	Close() error
}

type Listener interface {
	Accept() (Conn, error)
	Addr() string
	Close() error
}

// Session is a registered alias and the connection it talks through.
type Session struct {
	ID          uuid.UUID
	Alias       string
	Code        string
	RemoteAddr  string
	ConnectedAt time.Time
	Conn        Conn
}

func (s Session) UserEntry() domain.UserEntry {
	return domain.UserEntry{Code: s.Code, Alias: s.Alias}
}

type IRegistry interface {
	TryRegister(alias string, conn Conn, remoteAddr string) (Session, error)
	// Admit is TryRegister with a welcome step run under the registry lock,
	// before the session becomes visible. A welcome error leaves the alias free.
	Admit(alias string, conn Conn, remoteAddr string, welcome func(Session) error) (Session, error)
	Remove(alias string)
	Lookup(alias string) (Session, error)
	Snapshot() []Session
	// Fanout runs fn with an ordered snapshot while the registry lock is held.
	// fn must not call back into the registry.
	Fanout(fn func(sessions []Session))
	Len() int
}

type IMessageQueue interface {
	Push(sender, raw string) domain.QueueEntry
	Pop(ctx context.Context) (domain.QueueEntry, error)
	Len() int
	Close()
}

type IHistoryStore interface {
	RecordConnect(alias, code, remoteAddr string, at time.Time) error
	// RecordDisconnect closes the open record of alias, but only when that record
	// was opened at connectedAt: a newer session of the same alias keeps its record.
	RecordDisconnect(alias string, connectedAt, at time.Time) error
	List(alias *string) ([]domain.ConnectionRecord, error)
}

type ITranscriptStore interface {
	Append(alias, text, destination string) error
	List(alias string) ([]domain.TranscriptEntry, error)
}

// IUserListObserver is notified with the full membership list on every change.
type IUserListObserver interface {
	PublishUsers(users []domain.UserEntry)
}
