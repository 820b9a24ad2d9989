package storage

import (
	"context"
	"errors"
)

var (
	ErrStoreClosed   = errors.New("store is closed")
	ErrInvalidBackup = errors.New("backup is not a valid JSON document")
)

// Store is a JSON document addressed by gjson style paths. Set and Delete
// also accept sjson's ':' prefix to force a numeric object key
// ("modules.:2024"); Get and Update keys never carry it.
type Store interface {
	Set(ctx context.Context, key []byte, value interface{}) error
	Get(ctx context.Context, key []byte) ([]byte, error)
	Delete(ctx context.Context, key []byte) error

	Restore(values []byte) error
	Backup() ([]byte, error)

	ListenToUpdates() <-chan *Update

	Close() error
}

// Update is sent to listeners whenever a key changes. Value is the raw JSON
// now stored under Key, empty when the key was deleted.
type Update struct {
	Key   []byte
	Value []byte
}
