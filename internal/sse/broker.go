// Package sse implements a Server-Sent Events broker that streams graph
// changes to connected clients.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/starford/pagegraph/internal/graph"
)

const (
	clientBuffer   = 64
	defaultBacklog = 128
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// PageEvent is the payload of page.added, page.modified and page.removed.
type PageEvent struct {
	Path string `json:"path"`
	Kind string `json:"kind"`
}

type pageEventReq struct {
	kind  string
	path  string
	stats graph.Stats
}

type subscription struct {
	ch chan []byte
	// since replays backlog frames with a greater id; 0 replays nothing.
	since uint64
}

type frame struct {
	id  uint64
	raw []byte
}

// BrokerOption customises a Broker.
type BrokerOption func(*Broker)

// WithHeartbeat makes ServeHTTP write a comment line every d so proxies keep
// idle streams open. Zero disables heartbeats.
func WithHeartbeat(d time.Duration) BrokerOption {
	return func(b *Broker) { b.heartbeat = d }
}

// WithBacklog sets how many recent frames are kept for Last-Event-ID replay.
func WithBacklog(n int) BrokerOption {
	return func(b *Broker) { b.backlog = n }
}

// Broker manages SSE client connections and broadcasts events.
//
// A single event loop owns the clients, the backlog, the event sequence and
// the graph.updated throttle state. Public methods talk to it over channels.
type Broker struct {
	graphMin  time.Duration
	heartbeat time.Duration
	backlog   int

	subscribeCh   chan subscription
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	pageEventCh   chan pageEventReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker that emits at most one graph.updated event per
// graphThrottle interval.
func NewBroker(graphThrottle time.Duration, opts ...BrokerOption) *Broker {
	if graphThrottle <= 0 {
		graphThrottle = 2 * time.Second
	}

	b := &Broker{
		graphMin:      graphThrottle,
		heartbeat:     15 * time.Second,
		backlog:       defaultBacklog,
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		pageEventCh:   make(chan pageEventReq, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, o := range opts {
		o(b)
	}

	go b.run()
	return b
}

func encodeFrame(id uint64, event Event) ([]byte, error) {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return nil, err
	}
	return fmt.Appendf(nil, "id: %d\nevent: %s\ndata: %s\n\n", id, event.Type, payload), nil
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var (
		seq     uint64
		history []frame
	)

	// A page event inside the throttle window parks its stats in pending;
	// the flush timer delivers the latest ones when the window closes.
	var (
		lastGraph time.Time
		pending   *graph.Stats
		flush     *time.Timer
		flushCh   <-chan time.Time
	)

	broadcast := func(event Event) {
		raw, err := encodeFrame(seq+1, event)
		if err != nil {
			return
		}
		seq++
		if b.backlog > 0 {
			history = append(history, frame{id: seq, raw: raw})
			if len(history) > b.backlog {
				history = history[len(history)-b.backlog:]
			}
		}
		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Slow client; drop rather than stall the loop.
			}
		}
	}

	graphUpdated := func(stats graph.Stats) {
		lastGraph = time.Now()
		pending = nil
		broadcast(Event{Type: "graph.updated", Data: stats})
	}

	for {
		select {
		case <-b.stopCh:
			if flush != nil {
				flush.Stop()
			}
			for ch := range clients {
				close(ch)
			}
			return

		case sub := <-b.subscribeCh:
			clients[sub.ch] = struct{}{}
			if sub.since == 0 {
				continue
			}
			for _, f := range history {
				if f.id <= sub.since {
					continue
				}
				select {
				case sub.ch <- f.raw:
				default:
				}
			}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case req := <-b.pageEventCh:
			broadcast(Event{Type: "page." + req.kind, Data: PageEvent{Path: req.path, Kind: req.kind}})

			wait := b.graphMin - time.Since(lastGraph)
			if wait <= 0 {
				graphUpdated(req.stats)
				continue
			}
			if pending == nil {
				if flush == nil {
					flush = time.NewTimer(wait)
					flushCh = flush.C
				} else {
					flush.Reset(wait)
				}
			}
			stats := req.stats
			pending = &stats

		case <-flushCh:
			if pending != nil {
				graphUpdated(*pending)
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the event loop and closes every client channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	return b.subscribe(0)
}

// subscribe registers a client that first receives the backlog frames newer
// than lastID.
func (b *Broker) subscribe(lastID uint64) chan []byte {
	ch := make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscription{ch: ch, since: lastID}:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishPageEvent publishes a page.<kind> event and a throttled
// graph.updated event carrying stats. kind is added, modified or removed.
func (b *Broker) PublishPageEvent(kind, path string, stats graph.Stats) {
	if b.closed.Load() {
		return
	}
	select {
	case b.pageEventCh <- pageEventReq{kind: kind, path: path, stats: stats}:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events). A Last-Event-ID
// header replays the events the client missed, as far as the backlog
// reaches.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	lastID, _ := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64)
	ch := b.subscribe(lastID)
	defer b.Unsubscribe(ch)

	var tick <-chan time.Time
	if b.heartbeat > 0 {
		t := time.NewTicker(b.heartbeat)
		defer t.Stop()
		tick = t.C
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			_, _ = w.Write([]byte(": keepalive\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
