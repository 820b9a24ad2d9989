package storage

import (
	"context"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const updateBufferSize = 255

type InmemoryStore struct {
	valuesMu sync.RWMutex
	values   []byte

	mu          sync.Mutex
	updateChans []chan *Update

	// stop will be closed when Close() is called
	stop chan struct{}
}

func NewInmemoryStore() *InmemoryStore {
	return &InmemoryStore{
		values:      []byte(""),
		stop:        make(chan struct{}),
		updateChans: make([]chan *Update, 0),
	}
}

func (i *InmemoryStore) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.isRunning() {
		return nil
	}

	close(i.stop)

	for _, updateChan := range i.updateChans {
		close(updateChan)
	}
	i.updateChans = nil

	return nil
}

func (i *InmemoryStore) Set(ctx context.Context, key []byte, value interface{}) error {
	if !i.isRunning() {
		return ErrStoreClosed
	}

	i.valuesMu.Lock()
	values, err := sjson.SetBytes(i.values, string(key), value)
	if err != nil {
		i.valuesMu.Unlock()
		return err
	}

	i.values = values
	path := documentPath(key)
	raw := []byte(gjson.GetBytes(i.values, string(path)).Raw)
	i.valuesMu.Unlock()

	i.publish(&Update{Key: path, Value: raw})

	return nil
}

func (i *InmemoryStore) Get(ctx context.Context, key []byte) ([]byte, error) {
	i.valuesMu.RLock()
	defer i.valuesMu.RUnlock()

	result := gjson.GetBytes(i.values, string(key))

	// Copy so callers never alias the document, which Set rewrites.
	return []byte(result.Raw), nil
}

func (i *InmemoryStore) Delete(ctx context.Context, key []byte) error {
	if !i.isRunning() {
		return ErrStoreClosed
	}

	i.valuesMu.Lock()
	values, err := sjson.DeleteBytes(i.values, string(key))
	if err != nil {
		i.valuesMu.Unlock()
		return err
	}
	i.values = values
	i.valuesMu.Unlock()

	i.publish(&Update{Key: documentPath(key)})

	return nil
}

// ListenToUpdates returns a channel that receives every change until the
// store is closed. Listeners that fall more than updateBufferSize updates
// behind miss updates rather than blocking writers.
func (i *InmemoryStore) ListenToUpdates() <-chan *Update {
	i.mu.Lock()
	defer i.mu.Unlock()

	updateChan := make(chan *Update, updateBufferSize)
	if !i.isRunning() {
		close(updateChan)
		return updateChan
	}

	i.updateChans = append(i.updateChans, updateChan)

	return updateChan
}

func (i *InmemoryStore) Restore(values []byte) error {
	if len(values) > 0 && !gjson.ValidBytes(values) {
		return ErrInvalidBackup
	}

	i.valuesMu.Lock()
	i.values = append([]byte(nil), values...)
	i.valuesMu.Unlock()

	return nil
}

func (i *InmemoryStore) Backup() ([]byte, error) {
	i.valuesMu.RLock()
	defer i.valuesMu.RUnlock()

	if len(i.values) == 0 {
		return []byte("{}"), nil
	}

	return append([]byte(nil), i.values...), nil
}

func (i *InmemoryStore) publish(update *Update) {
	i.mu.Lock()
	defer i.mu.Unlock()

	for _, updateChan := range i.updateChans {
		select {
		case updateChan <- update:
		default:
		}
	}
}

// documentPath drops the ':' markers sjson uses to force a numeric object
// key, giving the path gjson reads the same value back with.
func documentPath(key []byte) []byte {
	path := make([]byte, 0, len(key))
	start := true

	for n := 0; n < len(key); n++ {
		c := key[n]

		switch {
		case start && c == ':':
		case c == '\\' && n+1 < len(key):
			path = append(path, c, key[n+1])
			n++
		default:
			path = append(path, c)
		}

		start = c == '.'
	}

	return path
}

// isRunning returns true if Close has not been called
func (i *InmemoryStore) isRunning() bool {
	select {
	case <-i.stop:
		return false

	default:
		return true
	}
}

var _ Store = (*InmemoryStore)(nil)
