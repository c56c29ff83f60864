package repositories

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

var _ contract.IHistoryStore = (*HistoryRepository)(nil)

const (
	connPrefix = "conn:"
	openPrefix = "open:"
)

// HistoryRepository is the connection ledger.
// One record per accepted handshake, closed on disconnect; records are never deleted.
type HistoryRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewHistoryRepository(db *badger.DB, log *slog.Logger) *HistoryRepository {
	return &HistoryRepository{db: db, log: log}
}

// RecordConnect stores a fresh open record for alias.
// The key is "conn:{alias}:{timestamp_padded}:{uuid}" so a prefix scan returns one alias in time order.
// A record left open by a crash is closed at the same instant.
func (h *HistoryRepository) RecordConnect(alias, code, remoteAddr string, at time.Time) error {
	record := domain.ConnectionRecord{
		ID:          uuid.New(),
		Alias:       alias,
		Code:        code,
		RemoteAddr:  remoteAddr,
		ConnectedAt: at.UTC(),
	}
	key := connKey(record)
	return h.db.Update(func(txn *badger.Txn) error {
		stale, staleKey, err := openRecord(txn, alias)
		switch {
		case err == nil:
			h.log.Warn("Closing stale connection record", "alias", alias, "id", stale.ID)
			stale.DisconnectedAt = &record.ConnectedAt
			if err := putRecord(txn, staleKey, stale); err != nil {
				return err
			}
		case !stderrors.Is(err, errors.ErrNoOpenRecord):
			return err
		}
		if err := putRecord(txn, key, record); err != nil {
			return err
		}
		return txn.Set(openKey(alias), key)
	})
}

// RecordDisconnect closes the open record of alias opened at connectedAt.
// When the alias reconnected in between, the open record belongs to the new
// session: it is left alone and ErrNoOpenRecord is returned.
func (h *HistoryRepository) RecordDisconnect(alias string, connectedAt, at time.Time) error {
	return h.db.Update(func(txn *badger.Txn) error {
		record, key, err := openRecord(txn, alias)
		if err != nil {
			return err
		}
		if !record.ConnectedAt.Equal(connectedAt) {
			return fmt.Errorf("%w: %s since %s", errors.ErrNoOpenRecord, alias, connectedAt.UTC().Format(time.RFC3339Nano))
		}
		disconnectedAt := at.UTC()
		record.DisconnectedAt = &disconnectedAt
		if err := putRecord(txn, key, record); err != nil {
			return err
		}
		return txn.Delete(openKey(alias))
	})
}

// List returns the records of alias in connection order, or every record when alias is nil.
func (h *HistoryRepository) List(alias *string) ([]domain.ConnectionRecord, error) {
	prefix := connPrefix
	if alias != nil {
		prefix = fmt.Sprintf("%s%s:", connPrefix, url.QueryEscape(*alias))
	}

	var records []domain.ConnectionRecord
	err := h.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				record, err := decodeRecord(value)
				if err != nil {
					return err
				}
				records = append(records, record)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if alias == nil {
		sort.SliceStable(records, func(i, j int) bool {
			return records[i].ConnectedAt.Before(records[j].ConnectedAt)
		})
	}
	return records, nil
}

func connKey(record domain.ConnectionRecord) []byte {
	return []byte(fmt.Sprintf("%s%s:%019d:%s",
		connPrefix,
		url.QueryEscape(record.Alias),
		record.ConnectedAt.UnixNano(),
		record.ID,
	))
}

func openKey(alias string) []byte {
	return []byte(openPrefix + url.QueryEscape(alias))
}

func openRecord(txn *badger.Txn, alias string) (domain.ConnectionRecord, []byte, error) {
	item, err := txn.Get(openKey(alias))
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return domain.ConnectionRecord{}, nil, fmt.Errorf("%w: %s", errors.ErrNoOpenRecord, alias)
	}
	if err != nil {
		return domain.ConnectionRecord{}, nil, err
	}
	key, err := item.ValueCopy(nil)
	if err != nil {
		return domain.ConnectionRecord{}, nil, err
	}

	item, err = txn.Get(key)
	if err != nil {
		return domain.ConnectionRecord{}, nil, fmt.Errorf("open record %s: %w", key, err)
	}
	var record domain.ConnectionRecord
	err = item.Value(func(value []byte) error {
		record, err = decodeRecord(value)
		return err
	})
	return record, key, err
}

func putRecord(txn *badger.Txn, key []byte, record domain.ConnectionRecord) error {
	fields := map[string]any{
		"id":           record.ID.String(),
		"alias":        record.Alias,
		"code":         record.Code,
		"remote_addr":  record.RemoteAddr,
		"connected_at": record.ConnectedAt.Format(time.RFC3339Nano),
	}
	if record.DisconnectedAt != nil {
		fields["disconnected_at"] = record.DisconnectedAt.Format(time.RFC3339Nano)
	}
	bytes, err := marshalFields(fields)
	if err != nil {
		return err
	}
	return txn.Set(key, bytes)
}

func decodeRecord(value []byte) (domain.ConnectionRecord, error) {
	fields, err := unmarshalFields(value)
	if err != nil {
		return domain.ConnectionRecord{}, err
	}
	id, err := uuid.Parse(fields["id"].GetStringValue())
	if err != nil {
		return domain.ConnectionRecord{}, err
	}
	connectedAt, err := time.Parse(time.RFC3339Nano, fields["connected_at"].GetStringValue())
	if err != nil {
		return domain.ConnectionRecord{}, err
	}
	record := domain.ConnectionRecord{
		ID:          id,
		Alias:       fields["alias"].GetStringValue(),
		Code:        fields["code"].GetStringValue(),
		RemoteAddr:  fields["remote_addr"].GetStringValue(),
		ConnectedAt: connectedAt,
	}
	if raw, ok := fields["disconnected_at"]; ok {
		disconnectedAt, err := time.Parse(time.RFC3339Nano, raw.GetStringValue())
		if err != nil {
			return domain.ConnectionRecord{}, err
		}
		record.DisconnectedAt = &disconnectedAt
	}
	return record, nil
}

// marshalFields encodes a flat string map as a protobuf Struct.
func marshalFields(fields map[string]any) ([]byte, error) {
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("marshal failed: %w", err)
	}
	return proto.Marshal(s)
}

func unmarshalFields(value []byte) (map[string]*structpb.Value, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(value, &s); err != nil {
		return nil, err
	}
	return s.GetFields(), nil
}
