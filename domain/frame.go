// Package domain contains core concepts of the relay.
// This file defines the frames exchanged between clients and the server.
// Frames are plain values: no network or encoding logic belongs here.
package domain

import "fmt"

type Tag string

const (
	TagPublic     Tag = "MSG_ALL"
	TagPrivate    Tag = "MSG_PRIVATE"
	TagFile       Tag = "FILE"
	TagUsers      Tag = "USERS"
	TagPrompt     Tag = "PROMPT"
	TagWelcome    Tag = "WELCOME"
	TagAliasTaken Tag = "ALIAS_TAKEN"
	TagText       Tag = "TEXT"
	TagHello      Tag = "HELLO"
	TagLeave      Tag = "salir"
)

// BroadcastDestination addresses a file to every other connected alias.
// It is also the destination recorded in transcripts for public messages.
const BroadcastDestination = "Todos"

const AliasPrompt = "Escribe tu alias: "

type Frame interface {
	Tag() Tag
}

// PublicMessage is sent by a client to reach everybody else.
type PublicMessage struct {
	Text string
}

func (PublicMessage) Tag() Tag { return TagPublic }

// PrivateMessage is sent by a client to reach a single alias.
type PrivateMessage struct {
	To   string
	Text string
}

func (PrivateMessage) Tag() Tag { return TagPrivate }

// FileTransfer carries a whole file.
// Peer is the destination when a client sends it, and the sender when the server relays it.
type FileTransfer struct {
	Peer     string
	Filename string
	Payload  []byte
}

func (FileTransfer) Tag() Tag { return TagFile }

type UserEntry struct {
	Code  string
	Alias string
}

func (u UserEntry) String() string {
	return fmt.Sprintf("%s (%s)", u.Alias, u.Code)
}

// UserListSnapshot is the full membership list, pushed on every join or leave.
type UserListSnapshot struct {
	Entries []UserEntry
}

func (UserListSnapshot) Tag() Tag { return TagUsers }

type SystemPrompt struct {
	Text string
}

func (SystemPrompt) Tag() Tag { return TagPrompt }

type Welcome struct {
	Alias string
}

func (Welcome) Tag() Tag { return TagWelcome }

func (w Welcome) Text() string {
	return fmt.Sprintf("Bienvenido, %s.", w.Alias)
}

type AliasTaken struct{}

func (AliasTaken) Tag() Tag { return TagAliasTaken }

// Hello answers the handshake prompt with the alias a client wants.
type Hello struct {
	Alias string
}

func (Hello) Tag() Tag { return TagHello }

type Leave struct{}

func (Leave) Tag() Tag { return TagLeave }

// Notice is display text pushed by the server, such as a relayed chat line.
type Notice struct {
	Text string
}

func (Notice) Tag() Tag { return TagText }

func PublicNotice(sender, text string) Notice {
	return Notice{Text: fmt.Sprintf("%s (%s): %s", sender, BroadcastDestination, text)}
}

func PrivateNotice(sender, text string) Notice {
	return Notice{Text: fmt.Sprintf("%s (Privado): %s", sender, text)}
}
