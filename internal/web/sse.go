package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// keepAlive is how often an idle event stream gets a comment line so proxies
// do not drop it.
const keepAlive = 25 * time.Second

// event is a change notification pushed to SSE clients.
type event struct {
	ID      uint64 `json:"id"`
	Type    string `json:"type"`
	BoardID string `json:"boardId,omitempty"`
}

// subscriber receives events for one board, or for every board when boardID
// is empty.
type subscriber struct {
	boardID string
	ch      chan event
}

func (sub *subscriber) wants(e event) bool {
	return sub.boardID == "" || e.BoardID == "" || e.BoardID == sub.boardID
}

// broker fans events out to SSE subscribers. Slow subscribers miss events
// rather than block publishers.
type broker struct {
	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	seq    uint64
	closed bool
}

func newBroker() *broker {
	return &broker{subs: make(map[*subscriber]struct{})}
}

// subscribe registers a subscriber. It returns nil once the broker is closed.
func (b *broker) subscribe(boardID string) *subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	sub := &subscriber{boardID: boardID, ch: make(chan event, 10)}
	b.subs[sub] = struct{}{}
	return sub
}

// unsubscribe removes sub and closes its channel if the broker has not
// already done so.
func (b *broker) unsubscribe(sub *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub.ch)
	}
}

// publish delivers an event to every interested subscriber and returns how
// many received it.
func (b *broker) publish(typ, boardID string) int {
	b.mu.Lock()
	b.seq++
	e := event{ID: b.seq, Type: typ, BoardID: boardID}
	b.mu.Unlock()

	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for sub := range b.subs {
		if !sub.wants(e) {
			continue
		}
		select {
		case sub.ch <- e:
			delivered++
		default:
		}
	}
	return delivered
}

// close ends every subscription. Later subscribe calls return nil.
func (b *broker) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for sub := range b.subs {
		delete(b.subs, sub)
		close(sub.ch)
	}
}

func (b *broker) len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// handleSSE streams board change events. ?boardId= limits the stream to one
// board.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.jsonError(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	// The server's WriteTimeout would otherwise end the stream.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Warn("SSE write deadline not cleared", "error", err)
	}

	sub := s.events.subscribe(r.URL.Query().Get("boardId"))
	if sub == nil {
		s.jsonError(w, "Server shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.events.unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	fmt.Fprint(w, "event: connected\ndata: {\"status\":\"connected\"}\n\n")
	flusher.Flush()
	s.logger.Debug("SSE client connected", "board", sub.boardID)

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("SSE client disconnected", "board", sub.boardID)
			return
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case e, ok := <-sub.ch:
			if !ok {
				return
			}
			data, err := json.Marshal(e)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", e.ID, e.Type, data)
			flusher.Flush()
		}
	}
}
