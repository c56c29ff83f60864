package domain

import (
	"time"

	"github.com/google/uuid"
)

// ConnectionRecord is one entry of the connection-history ledger.
// DisconnectedAt stays nil while the alias is online.
type ConnectionRecord struct {
	ID             uuid.UUID
	Alias          string
	Code           string
	RemoteAddr     string
	ConnectedAt    time.Time
	DisconnectedAt *time.Time
}

func (c ConnectionRecord) Open() bool {
	return c.DisconnectedAt == nil
}

// TranscriptEntry is one line of the archive kept for the alias that sent it.
type TranscriptEntry struct {
	ID          uuid.UUID
	Alias       string
	Destination string
	Text        string
	At          time.Time
}
