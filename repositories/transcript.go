package repositories

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

var _ contract.ITranscriptStore = (*TranscriptRepository)(nil)

const transcriptPrefix = "transcript:"

// TranscriptRepository archives what each alias sent: text for messages,
// a placeholder line for files. Payloads are never stored.
type TranscriptRepository struct {
	db  *badger.DB
	log *slog.Logger
	now func() time.Time
}

func NewTranscriptRepository(db *badger.DB, log *slog.Logger) *TranscriptRepository {
	return &TranscriptRepository{db: db, log: log, now: time.Now}
}

// Append persists one line under "transcript:{alias}:{timestamp_padded}:{uuid}".
func (t *TranscriptRepository) Append(alias, text, destination string) error {
	entry := domain.TranscriptEntry{
		ID:          uuid.New(),
		Alias:       alias,
		Destination: destination,
		Text:        text,
		At:          t.now().UTC(),
	}
	key := fmt.Sprintf("%s%s:%019d:%s",
		transcriptPrefix,
		url.QueryEscape(alias),
		entry.At.UnixNano(),
		entry.ID,
	)
	bytes, err := marshalFields(map[string]any{
		"id":          entry.ID.String(),
		"alias":       entry.Alias,
		"destination": entry.Destination,
		"text":        entry.Text,
		"at":          entry.At.Format(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}
	return t.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), bytes)
	})
}

// List returns the lines of alias, oldest first.
func (t *TranscriptRepository) List(alias string) ([]domain.TranscriptEntry, error) {
	prefix := []byte(fmt.Sprintf("%s%s:", transcriptPrefix, url.QueryEscape(alias)))
	var entries []domain.TranscriptEntry
	err := t.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				entry, err := decodeTranscript(value)
				if err != nil {
					return err
				}
				entries = append(entries, entry)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return entries, err
}

// Aliases lists every alias with at least one archived line.
func (t *TranscriptRepository) Aliases() ([]string, error) {
	var aliases []string
	err := t.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()
		prefix := []byte(transcriptPrefix)
		last := ""
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			rest := string(it.Item().Key()[len(prefix):])
			escaped, _, _ := strings.Cut(rest, ":")
			if escaped == last {
				continue
			}
			last = escaped
			alias, err := url.QueryUnescape(escaped)
			if err != nil {
				return err
			}
			aliases = append(aliases, alias)
		}
		return nil
	})
	return aliases, err
}

func decodeTranscript(value []byte) (domain.TranscriptEntry, error) {
	fields, err := unmarshalFields(value)
	if err != nil {
		return domain.TranscriptEntry{}, err
	}
	id, err := uuid.Parse(fields["id"].GetStringValue())
	if err != nil {
		return domain.TranscriptEntry{}, err
	}
	at, err := time.Parse(time.RFC3339Nano, fields["at"].GetStringValue())
	if err != nil {
		return domain.TranscriptEntry{}, err
	}
	return domain.TranscriptEntry{
		ID:          id,
		Alias:       fields["alias"].GetStringValue(),
		Destination: fields["destination"].GetStringValue(),
		Text:        fields["text"].GetStringValue(),
		At:          at,
	}, nil
}
