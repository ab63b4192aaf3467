package schema

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nlquery/nlquery/internal/source"
	"github.com/nlquery/nlquery/internal/storage"
)

var ErrRecordNotFound = errors.New("schema record not found")

type Store interface {
	Load(ctx context.Context, kind source.Kind) (Record, error)
	Save(ctx context.Context, record Record) error
}

// RecordStore keeps one JSON record per source kind. A later save for the
// same kind replaces the earlier one.
type RecordStore struct {
	Blobs storage.Blobs
}

func NewRecordStore(blobs storage.Blobs) *RecordStore {
	return &RecordStore{Blobs: blobs}
}

func (s *RecordStore) Load(ctx context.Context, kind source.Kind) (Record, error) {
	key, err := storage.SchemaRecordKey(string(kind))
	if err != nil {
		return Record{}, err
	}
	body, err := s.Blobs.Read(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return Record{}, ErrRecordNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("load schema record %q: %w", key, err)
	}
	var record Record
	if err := json.Unmarshal(body, &record); err != nil {
		return Record{}, fmt.Errorf("%w: decode %q: %v", ErrRecordNotFound, key, err)
	}
	return record, nil
}

func (s *RecordStore) Save(ctx context.Context, record Record) error {
	key, err := storage.SchemaRecordKey(record.DBType)
	if err != nil {
		return err
	}
	if record.Schema == nil {
		record.Schema = Description{}
	}
	body, err := json.MarshalIndent(record, "", "    ")
	if err != nil {
		return fmt.Errorf("encode schema record: %w", err)
	}
	if err := s.Blobs.Write(ctx, key, body, "application/json"); err != nil {
		return fmt.Errorf("save schema record %q: %w", key, err)
	}
	return nil
}
