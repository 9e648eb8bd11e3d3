package bus

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// KindTransmissionBatch wraps coalesced atc_transmission events on the
// websocket feed; Data is the batched []Event.
const KindTransmissionBatch = "atc_transmission_batch"

// batchTick drives interval flushes for connections with sparse
// traffic.
const batchTick = 100 * time.Millisecond

// WSFeed streams bus events to websocket clients as JSON frames. The
// external map GUI attaches here. Each connection gets its own bus
// subscriber; transmission events are batched, everything else is
// forwarded as it arrives.
type WSFeed struct {
	bus           *Bus
	log           *slog.Logger
	batchInterval time.Duration
	batchMax      int
}

// NewWSFeed builds the feed handler. Non-positive batch settings use
// the defaults.
func NewWSFeed(b *Bus, batchInterval time.Duration, batchMax int, log *slog.Logger) *WSFeed {
	if log == nil {
		log = slog.Default()
	}
	return &WSFeed{
		bus:           b,
		log:           log,
		batchInterval: batchInterval,
		batchMax:      batchMax,
	}
}

// ServeHTTP upgrades the request and streams events until the client
// disconnects or the server shuts down.
func (f *WSFeed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// The GUI is a local desktop process; it connects without an
		// Origin header a browser would send.
		InsecureSkipVerify: true,
	})
	if err != nil {
		f.log.Warn("websocket accept failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "feed closed")

	sub := f.bus.Subscribe("ws:" + r.RemoteAddr)
	defer sub.Close()
	f.log.Info("feed client connected", "remote", r.RemoteAddr)
	defer f.log.Info("feed client disconnected", "remote", r.RemoteAddr)

	f.stream(r.Context(), conn, sub)
}

func (f *WSFeed) stream(ctx context.Context, conn *websocket.Conn, sub *Subscriber) {
	batcher := NewBatcher(f.batchInterval, f.batchMax)
	ticker := time.NewTicker(batchTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if batch := batcher.Flush(); batch != nil {
				if !f.write(ctx, conn, batchEvent(batch)) {
					return
				}
			}
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if ev.Kind == KindATCTransmission {
				if batch := batcher.Add(ev); batch != nil {
					if !f.write(ctx, conn, batchEvent(batch)) {
						return
					}
				}
				continue
			}
			if !f.write(ctx, conn, ev) {
				return
			}
		}
	}
}

func (f *WSFeed) write(ctx context.Context, conn *websocket.Conn, ev Event) bool {
	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := wsjson.Write(wctx, conn, ev); err != nil {
		f.log.Debug("feed write failed", "error", err)
		return false
	}
	return true
}

func batchEvent(batch []Event) Event {
	return Event{Kind: KindTransmissionBatch, Data: batch, Time: time.Now()}
}
