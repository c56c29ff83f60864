package client

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/protocol"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	DefaultInboxDir      = "recibidos"
	MalformedFileNotice  = "⚠ Mensaje de archivo mal formado."
	fallbackFilename     = "archivo"
	inboxDirPermissions  = 0o755
	inboxFilePermissions = 0o644
)

// ReceivedFile describes a payload already written to the inbox.
type ReceivedFile struct {
	Sender   string
	Filename string
	Path     string
	MimeType string
	Size     int
}

type Callbacks interface {
	OnUsers(users []domain.UserEntry)
	OnFile(file ReceivedFile)
	OnText(text string)
}

// Receiver reads server frames and hands them to Callbacks, one at a time, in arrival order.
type Receiver struct {
	log       *slog.Logger
	conn      contract.Conn
	inboxDir  string
	callbacks Callbacks
}

func NewReceiver(log *slog.Logger, conn contract.Conn, inboxDir string, callbacks Callbacks) *Receiver {
	if inboxDir == "" {
		inboxDir = DefaultInboxDir
	}
	return &Receiver{log: log, conn: conn, inboxDir: inboxDir, callbacks: callbacks}
}

// Run blocks until the connection ends. It does not reconnect.
func (r *Receiver) Run() {
	for {
		line, err := r.conn.ReadFrame()
		if err != nil {
			r.log.Debug("Receiver stopped", "error", err)
			return
		}
		r.Dispatch(line)
	}
}

// Dispatch classifies one line by its tag.
// Anything that is not a known frame is shown as it came.
func (r *Receiver) Dispatch(line string) {
	frame, err := protocol.Decode(line)
	if err != nil {
		if strings.HasPrefix(line, string(domain.TagFile)+":") {
			r.callbacks.OnText(MalformedFileNotice)
			return
		}
		r.log.Debug("Undecodable frame shown raw", "error", err)
		r.callbacks.OnText(strings.TrimRight(line, "\r\n"))
		return
	}

	switch f := frame.(type) {
	case domain.UserListSnapshot:
		r.callbacks.OnUsers(f.Entries)
	case domain.FileTransfer:
		r.receiveFile(f)
	case domain.Notice:
		r.callbacks.OnText(f.Text)
	case domain.Welcome:
		r.callbacks.OnText(f.Text())
	case domain.SystemPrompt:
		r.callbacks.OnText(f.Text)
	case domain.AliasTaken:
		r.callbacks.OnText("El alias ya está en uso.")
	default:
		r.log.Debug("Ignoring frame", "tag", frame.Tag())
	}
}

func (r *Receiver) receiveFile(file domain.FileTransfer) {
	name := SanitizeFilename(file.Filename)
	path := filepath.Join(r.inboxDir, name)
	if err := os.MkdirAll(r.inboxDir, inboxDirPermissions); err != nil {
		r.callbacks.OnText(fmt.Sprintf("⚠ Error al guardar archivo: %v", err))
		return
	}
	if err := os.WriteFile(path, file.Payload, inboxFilePermissions); err != nil {
		r.callbacks.OnText(fmt.Sprintf("⚠ Error al guardar archivo: %v", err))
		return
	}
	r.callbacks.OnFile(ReceivedFile{
		Sender:   file.Peer,
		Filename: name,
		Path:     path,
		MimeType: mimetype.Detect(file.Payload).String(),
		Size:     len(file.Payload),
	})
}

// SanitizeFilename keeps only the base name, so a received file never leaves the inbox.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(filepath.Clean("/" + name))
	switch name {
	case "", ".", "..", "/":
		return fallbackFilename
	}
	return name
}
