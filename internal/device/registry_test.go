package device

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestRegistry_ReplaceReportsChanges(t *testing.T) {
	r := NewRegistry()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return clock }

	added, removed := r.Replace([]Status{
		{Serial: "A", State: StateDevice, ConnectionType: ConnectionADB},
		{Serial: "B", State: StateFastboot, ConnectionType: ConnectionFastboot},
	})
	if !reflect.DeepEqual(added, []string{"A", "B"}) || len(removed) != 0 {
		t.Fatalf("first Replace() = %v, %v", added, removed)
	}

	clock = clock.Add(2 * time.Second)
	added, removed = r.Replace([]Status{
		{Serial: "B", State: StateDevice, ConnectionType: ConnectionADB},
		{Serial: "C", State: StateRecovery, ConnectionType: ConnectionADB},
	})
	if !reflect.DeepEqual(added, []string{"C"}) {
		t.Errorf("added = %v, want [C]", added)
	}
	if !reflect.DeepEqual(removed, []string{"A"}) {
		t.Errorf("removed = %v, want [A]", removed)
	}

	b, err := r.Get("B")
	if err != nil {
		t.Fatalf("Get(B) error = %v", err)
	}
	if b.ConnectionType != ConnectionADB {
		t.Errorf("B connection = %s, want adb", b.ConnectionType)
	}
	if !b.FirstSeen.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("B FirstSeen = %v, want original timestamp", b.FirstSeen)
	}
	if !b.LastSeen.Equal(clock) {
		t.Errorf("B LastSeen = %v, want %v", b.LastSeen, clock)
	}
}

func TestRegistry_ListKeepsOrder(t *testing.T) {
	r := NewRegistry()
	r.Replace([]Status{{Serial: "Z"}, {Serial: "A"}, {Serial: "M"}, {Serial: "A"}})

	got := make([]string, 0, 3)
	for _, e := range r.List() {
		got = append(got, e.Serial)
	}
	if !reflect.DeepEqual(got, []string{"Z", "A", "M"}) {
		t.Errorf("List() serials = %v", got)
	}
}

func TestRegistry_GetMissing(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get("nope"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Get() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestRegistry_Stats(t *testing.T) {
	r := NewRegistry()
	r.Replace([]Status{
		{Serial: "A", ConnectionType: ConnectionADB},
		{Serial: "B", ConnectionType: ConnectionADB},
		{Serial: "C", ConnectionType: ConnectionFastboot},
	})

	want := Stats{Total: 3, ADB: 2, Fastboot: 1}
	if got := r.Stats(); got != want {
		t.Errorf("Stats() = %+v, want %+v", got, want)
	}
}

func TestSerials(t *testing.T) {
	got := Serials([]Status{{Serial: "x"}, {Serial: "y"}})
	if !reflect.DeepEqual(got, []string{"x", "y"}) {
		t.Errorf("Serials() = %v", got)
	}
}
