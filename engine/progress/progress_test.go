package progress

import (
	"context"
	"errors"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/flightdv/corepipeline/engine/domain"
)

func startTestNATS(t *testing.T) *nats.Conn {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
	})
	if err != nil {
		t.Fatal(err)
	}
	srv.Start()
	if !srv.ReadyForConnections(3 * time.Second) {
		t.Fatal("nats not ready")
	}
	nc, err := nats.Connect(srv.ClientURL())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		nc.Close()
		srv.Shutdown()
	})
	return nc
}

func TestEventsOnlyPublishAndSubscribe(t *testing.T) {
	nc := startTestNATS(t)
	ch := NewEventsOnly(nc)

	received := make(chan domain.ProgressEvent, 1)
	sub, err := ch.Subscribe(context.Background(), "job-1", func(ev domain.ProgressEvent) {
		received <- ev
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	want := domain.ProgressEvent{JobID: "job-1", Status: domain.StatusSuccess, Progress: 100}
	if err := ch.Publish(context.Background(), want); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case got := <-received:
		if got != want {
			t.Fatalf("got %+v, want %+v", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for progress event")
	}
}

func TestEventsOnlyCurrentReturnsNotFound(t *testing.T) {
	nc := startTestNATS(t)
	ch := NewEventsOnly(nc)

	_, err := ch.Current(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNewCreatesKVBackedChannel(t *testing.T) {
	nc := startTestNATS(t)
	ch, err := New(context.Background(), nc)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ev := domain.ProgressEvent{JobID: "job-2", Status: domain.StatusStarted, Progress: 10, Message: "parsing"}
	if err := ch.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	got, err := ch.Current(context.Background(), "job-2")
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if got != ev {
		t.Fatalf("got %+v, want %+v", got, ev)
	}
}
