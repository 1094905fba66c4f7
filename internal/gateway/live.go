// Live status feed over websocket.
//
// The mod keeps one connection open and renders the rate-limit gauge from
// pushed documents instead of polling /status. Slow subscribers drop
// intermediate documents; only the latest matters.
package gateway

import (
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog/log"
)

type statusHub struct {
	mu   sync.Mutex
	subs map[chan StatusResponse]struct{}
}

func newStatusHub() *statusHub {
	return &statusHub{subs: make(map[chan StatusResponse]struct{})}
}

func (h *statusHub) subscribe() chan StatusResponse {
	ch := make(chan StatusResponse, 1)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *statusHub) unsubscribe(ch chan StatusResponse) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

// broadcast replaces any undelivered document with the latest one.
func (h *statusHub) broadcast(doc StatusResponse) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- doc:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- doc
		}
	}
}

// handleStatusLive upgrades to websocket and streams status documents.
// Like /status, it is not consent-gated: it only ever carries local state.
func (g *Gateway) handleStatusLive(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Local companion: the mod connects from the game host itself.
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Debug().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// The feed is write-only; CloseRead surfaces a client-side close right
	// away instead of on the next write attempt.
	ctx := conn.CloseRead(r.Context())

	ch := g.hub.subscribe()
	defer g.hub.unsubscribe(ch)

	// Initial document so the UI renders immediately.
	if err := wsjson.Write(ctx, conn, g.status()); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case doc := <-ch:
			if err := wsjson.Write(ctx, conn, doc); err != nil {
				return
			}
		}
	}
}
