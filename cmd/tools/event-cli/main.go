package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/annel0/voxel-surface/internal/eventbus"
	"github.com/annel0/voxel-surface/internal/runtime"
	"github.com/annel0/voxel-surface/internal/seam"
)

const (
	defaultNatsURL = "nats://127.0.0.1:4222"
	timeFormat     = "15:04:05.000"
)

func main() {
	var (
		natsURL    = flag.String("nats", defaultNatsURL, "NATS server URL")
		stream     = flag.String("stream", "EVENTS", "JetStream stream name")
		command    = flag.String("cmd", "tail", "Command: tail, counts")
		eventTypes = flag.String("types", "", "Event types filter (comma-separated)")
		window     = flag.Duration("for", 10*time.Second, "Collection window for counts")
	)
	flag.Parse()

	bus, err := eventbus.NewJetStreamBus(*natsURL, *stream, 24*time.Hour)
	if err != nil {
		log.Fatalf("❌ Failed to connect to NATS: %v", err)
	}
	defer bus.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	filter := eventbus.Filter{Types: parseStringList(*eventTypes)}

	switch *command {
	case "tail":
		if err := tailEvents(ctx, bus, filter); err != nil {
			log.Fatalf("❌ Tail failed: %v", err)
		}
	case "counts":
		ctx, cancel := context.WithTimeout(ctx, *window)
		defer cancel()
		if err := showCounts(ctx, bus, filter); err != nil {
			log.Fatalf("❌ Counts failed: %v", err)
		}
	default:
		log.Fatalf("❌ Unknown command: %s", *command)
	}
}

// tailEvents печатает события до Ctrl+C
func tailEvents(ctx context.Context, bus eventbus.EventBus, f eventbus.Filter) error {
	sub, err := bus.Subscribe(ctx, f, func(_ context.Context, ev *eventbus.Envelope) {
		fmt.Println(formatEvent(ev))
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	fmt.Printf("📡 Following events (types=%v), Ctrl+C to stop\n", f.Types)
	<-ctx.Done()
	return nil
}

// showCounts считает события по типам за окно времени
func showCounts(ctx context.Context, bus eventbus.EventBus, f eventbus.Filter) error {
	var mu sync.Mutex
	counts := make(map[string]int)
	sub, err := bus.Subscribe(ctx, f, func(_ context.Context, ev *eventbus.Envelope) {
		mu.Lock()
		counts[ev.EventType]++
		mu.Unlock()
	})
	if err != nil {
		return err
	}
	<-ctx.Done()
	sub.Unsubscribe()

	mu.Lock()
	defer mu.Unlock()
	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Strings(types)

	fmt.Println("📊 Event counts:")
	for _, t := range types {
		fmt.Printf("   %-12s %d\n", t, counts[t])
	}
	return nil
}

// formatEvent однострочное представление события
func formatEvent(ev *eventbus.Envelope) string {
	head := fmt.Sprintf("%s [%s] %s", ev.Timestamp.Local().Format(timeFormat), ev.Source, ev.EventType)
	switch ev.EventType {
	case eventbus.EventSeamUpdated:
		var u seam.Update
		if ev.Decode(&u) == nil {
			return fmt.Sprintf("%s chunk=%s face=%s rev=%d", head, u.Coord, u.Face, u.Revision)
		}
	case eventbus.EventMeshReady:
		var m runtime.MeshSummary
		if ev.Decode(&m) == nil {
			return fmt.Sprintf("%s chunk=%s quads=%d batches=%d", head, m.Coord, m.Quads, m.Batches)
		}
	case eventbus.EventChunkStale:
		var n runtime.StaleNotice
		if ev.Decode(&n) == nil {
			return fmt.Sprintf("%s chunk=%s job=%d verdict=%s", head, n.Coord, n.JobID, n.Verdict)
		}
	}
	return fmt.Sprintf("%s %dB", head, len(ev.Payload))
}

func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
