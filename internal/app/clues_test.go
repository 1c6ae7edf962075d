package app_test

import (
	"errors"
	"reflect"
	"testing"

	"haccp-training-service/internal/app"
	"haccp-training-service/internal/infra/memory"
)

type failingKV struct{}

func (failingKV) Get(string) ([]byte, bool, error) { return nil, false, errors.New("disk gone") }
func (failingKV) Set(string, []byte) error         { return errors.New("disk gone") }
func (failingKV) DeletePrefix(string) error        { return errors.New("disk gone") }

func TestClueLedgerUnlockIsIdempotent(t *testing.T) {
	ledger := app.NewClueLedger(memory.NewKV(), nil)

	ledger.Unlock(3, 2)
	ledger.Unlock(3, 0)
	ledger.Unlock(3, 2)
	ledger.Unlock(3, 2)

	if got := ledger.Unlocked(3); !reflect.DeepEqual(got, []int{0, 2}) {
		t.Fatalf("expected sorted [0 2], got %v", got)
	}
	if got := ledger.Unlocked(4); len(got) != 0 {
		t.Fatalf("expected no clues on untouched level, got %v", got)
	}
}

func TestClueLedgerPersistsAcrossInstances(t *testing.T) {
	kv := memory.NewKV()

	first := app.NewClueLedger(kv, nil)
	first.Unlock(1, 1)
	first.Unlock(1, 3)

	// A fresh ledger over the same store sees the persisted set.
	second := app.NewClueLedger(kv, nil)
	if got := second.Unlocked(1); !reflect.DeepEqual(got, []int{1, 3}) {
		t.Fatalf("expected persisted clues [1 3], got %v", got)
	}
}

func TestClueLedgerReset(t *testing.T) {
	kv := memory.NewKV()
	ledger := app.NewClueLedger(kv, nil)

	ledger.Unlock(1, 0)
	ledger.Unlock(2, 5)
	ledger.Reset()

	if got := ledger.Unlocked(1); len(got) != 0 {
		t.Fatalf("expected level 1 cleared, got %v", got)
	}
	// The backing store is cleared too, not just the in-memory view.
	fresh := app.NewClueLedger(kv, nil)
	if got := fresh.Unlocked(2); len(got) != 0 {
		t.Fatalf("expected level 2 cleared in storage, got %v", got)
	}
}

func TestClueLedgerSurvivesStorageFailure(t *testing.T) {
	ledger := app.NewClueLedger(failingKV{}, nil)

	ledger.Unlock(1, 2)
	if got := ledger.Unlocked(1); !reflect.DeepEqual(got, []int{2}) {
		t.Fatalf("expected in-memory set authoritative, got %v", got)
	}
	ledger.Reset()
	if got := ledger.Unlocked(1); len(got) != 0 {
		t.Fatalf("expected reset to clear memory despite storage failure, got %v", got)
	}
}
