package client

import (
	"bytes"
	"chat-relay/domain"
	"chat-relay/protocol"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type recordingCallbacks struct {
	users [][]domain.UserEntry
	files []ReceivedFile
	texts []string
}

func (r *recordingCallbacks) OnUsers(users []domain.UserEntry) { r.users = append(r.users, users) }
func (r *recordingCallbacks) OnFile(file ReceivedFile)         { r.files = append(r.files, file) }
func (r *recordingCallbacks) OnText(text string)               { r.texts = append(r.texts, text) }

func newTestReceiver(t *testing.T) (*Receiver, *recordingCallbacks, string) {
	inbox := filepath.Join(t.TempDir(), DefaultInboxDir)
	callbacks := &recordingCallbacks{}
	return NewReceiver(logs.GetLoggerFromLevel(slog.LevelDebug), nil, inbox, callbacks), callbacks, inbox
}

func TestReceiver_Classifies_By_Tag(t *testing.T) {
	req := require.New(t)
	receiver, callbacks, _ := newTestReceiver(t)

	receiver.Dispatch("USERS:481:Ana:207:Beto")
	receiver.Dispatch("WELCOME:Ana")
	receiver.Dispatch("TEXT:Beto (Privado)%3A hola")
	// A text that looks like the old user list stays a text
	receiver.Dispatch("TEXT:a|b, c; d")
	receiver.Dispatch("USERS")

	req.Equal([][]domain.UserEntry{
		{{Code: "481", Alias: "Ana"}, {Code: "207", Alias: "Beto"}},
		{},
	}, callbacks.users)
	req.Equal([]string{"Bienvenido, Ana.", "Beto (Privado): hola", "a|b, c; d"}, callbacks.texts)
}

func TestReceiver_Stores_Files_In_Inbox(t *testing.T) {
	req := require.New(t)
	receiver, callbacks, inbox := newTestReceiver(t)
	png := []byte("\x89PNG\r\n\x1a\n0000")

	receiver.Dispatch(protocol.MustEncode(domain.FileTransfer{Peer: "Ana", Filename: "foto.png", Payload: png}))
	receiver.Dispatch(protocol.MustEncode(domain.FileTransfer{Peer: "Ana", Filename: "vacio.txt", Payload: nil}))

	req.Len(callbacks.files, 2)
	file := callbacks.files[0]
	req.Equal("Ana", file.Sender)
	req.Equal("foto.png", file.Filename)
	req.Equal(filepath.Join(inbox, "foto.png"), file.Path)
	req.Equal("image/png", file.MimeType)
	req.Equal(len(png), file.Size)
	stored, err := os.ReadFile(file.Path)
	req.NoError(err)
	req.True(bytes.Equal(png, stored))

	empty, err := os.ReadFile(callbacks.files[1].Path)
	req.NoError(err)
	req.Empty(empty)
}

func TestReceiver_File_Never_Leaves_Inbox(t *testing.T) {
	req := require.New(t)
	receiver, callbacks, inbox := newTestReceiver(t)

	receiver.Dispatch(protocol.MustEncode(domain.FileTransfer{Peer: "Ana", Filename: "../../etc/passwd", Payload: []byte("x")}))

	req.Len(callbacks.files, 1)
	req.Equal(filepath.Join(inbox, "passwd"), callbacks.files[0].Path)
}

func TestReceiver_Malformed_File_Frame(t *testing.T) {
	req := require.New(t)
	receiver, callbacks, _ := newTestReceiver(t)

	receiver.Dispatch("FILE:Ana:a.txt")
	receiver.Dispatch("FILE:Ana:a.txt:%%%")
	receiver.Dispatch("FILE:Ana:a.txt:not base64!")

	req.Empty(callbacks.files)
	req.Equal([]string{MalformedFileNotice, MalformedFileNotice, MalformedFileNotice}, callbacks.texts)
}

func TestSanitizeFilename(t *testing.T) {
	req := require.New(t)
	for input, want := range map[string]string{
		"nota.txt":          "nota.txt",
		"dir/nota.txt":      "nota.txt",
		`..\..\win.ini`:     "win.ini",
		"/abs/path/a.pdf":   "a.pdf",
		"..":                fallbackFilename,
		"":                  fallbackFilename,
		"nombre con: dos.x": "nombre con: dos.x",
	} {
		req.Equal(want, SanitizeFilename(input), input)
	}
}

func TestReceiver_Run_Stops_On_End_Of_Stream(t *testing.T) {
	req := require.New(t)
	c, server := pipe(t)
	callbacks := &recordingCallbacks{}
	receiver := c.Receiver(t.TempDir(), callbacks)

	done := make(chan struct{})
	go func() {
		receiver.Run()
		close(done)
	}()

	req.NoError(server.WriteFrame("TEXT:hola"))
	req.NoError(server.Close())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("receiver did not stop")
	}
	req.Equal([]string{"hola"}, callbacks.texts)
}
