package app

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// KV is the local device storage used for clue state: synchronous gets and
// sets against a small key-value store, never the remote backend.
type KV interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	DeletePrefix(prefix string) error
}

const cluePrefix = "clues:"

// ClueLedger tracks which optional hint clues a player has unlocked per
// level. Clue sets only grow; they reset solely as part of a full progress
// reset. Storage failures are logged and swallowed, the in-memory set stays
// authoritative for the session.
type ClueLedger struct {
	kv  KV
	log *zap.Logger

	mu     sync.Mutex
	levels map[int]map[int]struct{}
}

func NewClueLedger(kv KV, log *zap.Logger) *ClueLedger {
	if log == nil {
		log = zap.NewNop()
	}
	return &ClueLedger{
		kv:     kv,
		log:    log,
		levels: make(map[int]map[int]struct{}),
	}
}

// Unlock marks a clue as revealed for a level. Idempotent.
func (l *ClueLedger) Unlock(level, clue int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	set := l.loadLocked(level)
	if _, ok := set[clue]; ok {
		return
	}
	set[clue] = struct{}{}
	l.persistLocked(level, set)
}

// Unlocked returns the sorted clue indices revealed for a level.
func (l *ClueLedger) Unlocked(level int) []int {
	l.mu.Lock()
	defer l.mu.Unlock()

	set := l.loadLocked(level)
	out := make([]int, 0, len(set))
	for idx := range set {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// Reset clears all clue state. Only called alongside a full progress reset.
func (l *ClueLedger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.levels = make(map[int]map[int]struct{})
	if err := l.kv.DeletePrefix(cluePrefix); err != nil {
		l.log.Warn("clue reset failed to clear local storage", zap.Error(err))
	}
}

func (l *ClueLedger) loadLocked(level int) map[int]struct{} {
	if set, ok := l.levels[level]; ok {
		return set
	}
	set := make(map[int]struct{})
	raw, ok, err := l.kv.Get(clueKey(level))
	if err != nil {
		l.log.Warn("clue load failed", zap.Int("level", level), zap.Error(err))
	} else if ok {
		var indices []int
		if err := json.Unmarshal(raw, &indices); err == nil {
			for _, idx := range indices {
				set[idx] = struct{}{}
			}
		}
	}
	l.levels[level] = set
	return set
}

func (l *ClueLedger) persistLocked(level int, set map[int]struct{}) {
	indices := make([]int, 0, len(set))
	for idx := range set {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	raw, _ := json.Marshal(indices)
	if err := l.kv.Set(clueKey(level), raw); err != nil {
		l.log.Warn("clue save failed", zap.Int("level", level), zap.Error(err))
	}
}

func clueKey(level int) string {
	return fmt.Sprintf("%s%d", cluePrefix, level)
}
