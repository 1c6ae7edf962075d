package memory

import (
	"strings"
	"sync"
)

// KV is an in-memory app.KV, standing in for local device storage in tests.
type KV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewKV() *KV {
	return &KV{data: make(map[string][]byte)}
}

func (kv *KV) Get(key string) ([]byte, bool, error) {
	kv.mu.RLock()
	defer kv.mu.RUnlock()
	value, ok := kv.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), value...), true, nil
}

func (kv *KV) Set(key string, value []byte) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.data[key] = append([]byte(nil), value...)
	return nil
}

func (kv *KV) DeletePrefix(prefix string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	for key := range kv.data {
		if strings.HasPrefix(key, prefix) {
			delete(kv.data, key)
		}
	}
	return nil
}
