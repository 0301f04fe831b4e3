package store

import (
	"sync"
	"testing"
	"time"
)

type widget struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestSetGet(t *testing.T) {
	s := New[widget]("w")
	s.Set("w_1", widget{Name: "a", Count: 1})

	got, ok := s.Get("w_1")
	if !ok {
		t.Fatal("expected item to exist")
	}
	if got.Name != "a" || got.Count != 1 {
		t.Errorf("unexpected item: %+v", got)
	}

	if _, ok := s.Get("w_2"); ok {
		t.Error("expected missing item")
	}
}

func TestNextID(t *testing.T) {
	s := New[widget]("w")
	if id := s.NextID(); id != "w_000001" {
		t.Errorf("expected w_000001, got %s", id)
	}
	if id := s.NextID(); id != "w_000002" {
		t.Errorf("expected w_000002, got %s", id)
	}
}

func TestSetIfAbsent(t *testing.T) {
	s := New[widget]("w")
	if !s.SetIfAbsent("w_1", widget{Name: "first"}) {
		t.Fatal("expected first insert to win")
	}
	if s.SetIfAbsent("w_1", widget{Name: "second"}) {
		t.Fatal("expected second insert to lose")
	}
	got, _ := s.Get("w_1")
	if got.Name != "first" {
		t.Errorf("expected first insert preserved, got %s", got.Name)
	}
}

func TestSetIfAbsentConcurrent(t *testing.T) {
	s := New[widget]("w")
	const n = 50

	var wg sync.WaitGroup
	wins := make(chan int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if s.SetIfAbsent("w_1", widget{Count: i}) {
				wins <- i
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	if count != 1 {
		t.Errorf("expected exactly one winning insert, got %d", count)
	}
}

func TestUpdate(t *testing.T) {
	s := New[widget]("w")
	s.Set("w_1", widget{Count: 1})

	if ok := s.Update("w_1", func(w widget) widget {
		w.Count++
		return w
	}); !ok {
		t.Fatal("expected update to find item")
	}
	got, _ := s.Get("w_1")
	if got.Count != 2 {
		t.Errorf("expected count 2, got %d", got.Count)
	}

	if ok := s.Update("missing", func(w widget) widget { return w }); ok {
		t.Error("expected update on missing item to return false")
	}
}

func TestUpdateIf(t *testing.T) {
	s := New[widget]("w")
	s.Set("w_1", widget{Count: 3})

	dec := func(w widget) widget { w.Count--; return w }

	found, applied := s.UpdateIf("w_1", func(w widget) bool { return w.Count > 0 }, dec)
	if !found || !applied {
		t.Fatalf("expected found+applied, got found=%v applied=%v", found, applied)
	}

	s.Set("w_1", widget{Count: 0})
	found, applied = s.UpdateIf("w_1", func(w widget) bool { return w.Count > 0 }, dec)
	if !found || applied {
		t.Fatalf("expected found without apply, got found=%v applied=%v", found, applied)
	}

	found, _ = s.UpdateIf("missing", func(w widget) bool { return true }, dec)
	if found {
		t.Error("expected missing item")
	}
}

func TestUpdateIfConcurrentNeverNegative(t *testing.T) {
	s := New[widget]("w")
	s.Set("w_1", widget{Count: 10})

	const workers = 40
	var wg sync.WaitGroup
	applied := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok := s.UpdateIf("w_1",
				func(w widget) bool { return w.Count >= 1 },
				func(w widget) widget { w.Count--; return w },
			)
			if ok {
				applied <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(applied)

	wins := 0
	for range applied {
		wins++
	}
	got, _ := s.Get("w_1")
	if got.Count < 0 {
		t.Errorf("count went negative: %d", got.Count)
	}
	if wins != 10 {
		t.Errorf("expected exactly 10 applied decrements, got %d", wins)
	}
	if got.Count != 0 {
		t.Errorf("expected count 0, got %d", got.Count)
	}
}

func TestDeleteAndList(t *testing.T) {
	s := New[widget]("w")
	s.Set("w_1", widget{Name: "a"})
	s.Set("w_2", widget{Name: "b"})
	s.Set("w_3", widget{Name: "c"})

	if !s.Delete("w_2") {
		t.Fatal("expected delete to succeed")
	}
	if s.Delete("w_2") {
		t.Fatal("expected second delete to fail")
	}

	items := s.List()
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].Name != "a" || items[1].Name != "c" {
		t.Errorf("unexpected order: %+v", items)
	}
}

func TestFilter(t *testing.T) {
	s := New[widget]("w")
	s.Set("w_1", widget{Count: 1})
	s.Set("w_2", widget{Count: 2})
	s.Set("w_3", widget{Count: 3})

	odd := s.Filter(func(id string, w widget) bool { return w.Count%2 == 1 })
	if len(odd) != 2 {
		t.Errorf("expected 2 matches, got %d", len(odd))
	}

	ids := s.FilterIDs(func(id string, w widget) bool { return w.Count > 1 })
	if len(ids) != 2 || ids[0] != "w_2" || ids[1] != "w_3" {
		t.Errorf("unexpected ids: %v", ids)
	}
}

func TestSnapshotLoadSnapshot(t *testing.T) {
	s := New[widget]("w")
	s.Set("w_2", widget{Name: "b"})
	s.Set("w_1", widget{Name: "a"})

	snap := s.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(snap))
	}

	s2 := New[widget]("w")
	s2.LoadSnapshot(snap)
	items := s2.List()
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	// LoadSnapshot sorts IDs for deterministic order.
	if items[0].Name != "a" || items[1].Name != "b" {
		t.Errorf("unexpected order after load: %+v", items)
	}
}

func TestReset(t *testing.T) {
	s := New[widget]("w")
	s.Set("w_1", widget{})
	s.NextID()
	s.Reset()

	if s.Count() != 0 {
		t.Errorf("expected empty store, got %d items", s.Count())
	}
	if id := s.NextID(); id != "w_000001" {
		t.Errorf("expected counter reset, got %s", id)
	}
}

func TestClockAdvance(t *testing.T) {
	c := NewClock()
	before := c.Now()
	c.Advance(48 * time.Hour)
	after := c.Now()

	if diff := after.Sub(before); diff < 47*time.Hour {
		t.Errorf("expected ~48h advance, got %v", diff)
	}

	c.Reset()
	if diff := c.Now().Sub(before); diff > time.Minute {
		t.Errorf("expected reset to undo offset, got %v", diff)
	}
}
