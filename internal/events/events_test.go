package events

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestBusFanOut(t *testing.T) {
	bus := NewBus()

	var got1, got2 []Event
	unsub1 := bus.Subscribe(func(ev Event) { got1 = append(got1, ev) })
	bus.Subscribe(func(ev Event) { got2 = append(got2, ev) })

	bus.Publish(Event{Entity: EntityArtifact, ID: "a1", Kind: KindCreated})

	if len(got1) != 1 || len(got2) != 1 {
		t.Fatalf("expected both subscribers to see 1 event, got %d and %d", len(got1), len(got2))
	}
	if got1[0].At.IsZero() {
		t.Error("expected Publish to stamp At")
	}

	unsub1()
	bus.Publish(Event{Entity: EntityArtifact, ID: "a1", Kind: KindDeleted})

	if len(got1) != 1 {
		t.Errorf("unsubscribed handler still received events: %d", len(got1))
	}
	if len(got2) != 2 {
		t.Errorf("expected remaining handler to see 2 events, got %d", len(got2))
	}
}

func TestNilBusPublish(t *testing.T) {
	var bus *Bus
	// Must not panic.
	bus.Publish(Event{Entity: EntityMemory, ID: "m1", Kind: KindUpdated})
}

func TestOpsLogWritesJSONL(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "logs", "operations.log")

	log := OpenOpsLog(logPath, OpsLogOptions{})
	defer log.Close()

	events := []Event{
		{Entity: EntitySnapshot, ID: "snap-1", Kind: KindSnapshot, At: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
		{Entity: EntityDeployment, ID: "dep-1", Kind: KindDeployed, Detail: map[string]string{"project": "p1"}},
	}
	for _, ev := range events {
		if err := log.Write(ev); err != nil {
			t.Fatalf("write event: %v", err)
		}
	}

	f, err := os.Open(logPath)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()

	var lines []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			t.Fatalf("bad JSONL line %q: %v", scanner.Text(), err)
		}
		lines = append(lines, ev)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d", len(lines))
	}
	if lines[0].ID != "snap-1" || lines[0].Kind != KindSnapshot {
		t.Errorf("unexpected first line: %+v", lines[0])
	}
	if lines[1].Detail["project"] != "p1" {
		t.Errorf("detail not preserved: %+v", lines[1].Detail)
	}
	if lines[1].At.IsZero() {
		t.Error("expected Write to stamp At")
	}
}

func TestOpsLogAsBusSubscriber(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "operations.log")

	log := OpenOpsLog(logPath, OpsLogOptions{})
	defer log.Close()

	bus := NewBus()
	bus.Subscribe(log.Handler())

	bus.Publish(Event{Entity: EntityArtifact, ID: "a9", Kind: KindUpdated})

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected log line after publish")
	}
}
