package history

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestRingStoreKeepsNewestExchanges(t *testing.T) {
	store := NewRingStore(3)
	for i := 0; i < 5; i++ {
		store.Append(Exchange{Question: fmt.Sprintf("q%d", i)})
	}
	if store.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", store.Len())
	}
	got := store.Recent(0)
	want := []string{"q2", "q3", "q4"}
	for i, exchange := range got {
		if exchange.Question != want[i] {
			t.Fatalf("Recent(0)[%d] = %q, want %q", i, exchange.Question, want[i])
		}
	}
	if recent := store.Recent(2); len(recent) != 2 || recent[0].Question != "q3" || recent[1].Question != "q4" {
		t.Fatalf("Recent(2) = %+v", recent)
	}
}

func TestRingStoreBeforeWrap(t *testing.T) {
	store := NewRingStore(4)
	store.Append(Exchange{Question: "a"})
	store.Append(Exchange{Question: "b"})
	got := store.Recent(10)
	if len(got) != 2 || got[0].Question != "a" || got[1].Question != "b" {
		t.Fatalf("Recent(10) = %+v", got)
	}
	if empty := NewRingStore(2).Recent(5); len(empty) != 0 {
		t.Fatalf("Recent() on empty store = %+v", empty)
	}
}

func TestRingStoreConcurrentAppend(t *testing.T) {
	store := NewRingStore(1000)
	var wg sync.WaitGroup
	for worker := 0; worker < 10; worker++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				store.Append(Exchange{Question: fmt.Sprintf("%d-%d", worker, i)})
			}
		}(worker)
	}
	wg.Wait()
	if store.Len() != 500 {
		t.Fatalf("Len() = %d, want 500", store.Len())
	}
}

func TestRegistryOpenAndGet(t *testing.T) {
	registry := NewRegistry(RegistryConfig{Capacity: 5})
	session, err := registry.Open("")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if session.ID == "" {
		t.Fatal("Open() returned empty session id")
	}
	recorded := registry.Record(session, Exchange{Question: "How many customers are there?", Answer: "122"})
	if recorded.ID == "" || recorded.SessionID != session.ID || recorded.CreatedAt.IsZero() {
		t.Fatalf("Record() = %+v", recorded)
	}

	again, err := registry.Open(session.ID)
	if err != nil {
		t.Fatalf("Open(existing) error = %v", err)
	}
	if again != session || len(again.Exchanges(0)) != 1 {
		t.Fatalf("Open(existing) returned a different session")
	}
	if _, err := registry.Open("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Open(missing) error = %v, want ErrSessionNotFound", err)
	}
}

func TestRegistryEvictsLeastRecentlyUsed(t *testing.T) {
	registry := NewRegistry(RegistryConfig{Capacity: 2, MaxSessions: 2})
	first, _ := registry.Open("")
	second, _ := registry.Open("")
	if _, err := registry.Get(first.ID); err != nil {
		t.Fatalf("Get(first) error = %v", err)
	}
	if _, err := registry.Open(""); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if registry.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", registry.Len())
	}
	if _, err := registry.Get(second.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Get(second) error = %v, want eviction", err)
	}
	if _, err := registry.Get(first.ID); err != nil {
		t.Fatalf("Get(first) after eviction error = %v", err)
	}
}

func TestRegistryReportsTotals(t *testing.T) {
	var reported []int
	registry := NewRegistry(RegistryConfig{Capacity: 2, OnChange: func(total int) { reported = append(reported, total) }})
	a, _ := registry.Open("")
	b, _ := registry.Open("")
	registry.Record(a, Exchange{Question: "1"})
	registry.Record(b, Exchange{Question: "2"})
	registry.Record(a, Exchange{Question: "3"})
	registry.Record(a, Exchange{Question: "4"})
	want := []int{1, 2, 3, 3}
	if fmt.Sprint(reported) != fmt.Sprint(want) {
		t.Fatalf("reported = %v, want %v", reported, want)
	}
}
