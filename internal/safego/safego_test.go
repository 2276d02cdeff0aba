package safego

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer guards concurrent writes from the logging goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestGo_RunsFunction(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)

	Go("test-task", func() {
		defer wg.Done()
	})

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("goroutine did not complete within timeout")
	}
}

func TestGo_RecoversAndNamesPanickedTask(t *testing.T) {
	sink := &syncBuffer{}
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(sink, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	// Must not crash the test process; the panic has to be recovered and
	// attributed to the task.
	Go("exploding-task", func() {
		panic("intentional panic in test")
	})

	deadline := time.After(2 * time.Second)
	for !strings.Contains(sink.String(), "exploding-task") {
		select {
		case <-deadline:
			t.Fatalf("panic log missing task name, got: %s", sink.String())
		case <-time.After(10 * time.Millisecond):
		}
	}
}
