package sniper

import (
	"context"
	"errors"
	"log"
	"time"
)

// POLL_INTERVAL bounds the close delay when the expiration channel drops
// a notification.
const POLL_INTERVAL = 5 * time.Second

// TriggerSource delivers expired timer tokens; shared with the wheel
// scheduler, each consumer filters its own prefix.
type TriggerSource interface {
	Subscribe(ctx context.Context) (<-chan string, error)
}

// Watcher closes auctions when their open-window timer expires.
type Watcher struct {
	engine   *Engine
	triggers TriggerSource
}

func NewWatcher(engine *Engine, triggers TriggerSource) *Watcher {
	return &Watcher{engine: engine, triggers: triggers}
}

// Run blocks until ctx is cancelled; run it on its own goroutine.
func (w *Watcher) Run(ctx context.Context) {
	tokens, err := w.triggers.Subscribe(ctx)
	if err != nil {
		log.Printf("[SNIPER] Expiration subscribe failed, poll-only mode: %v", err)
		tokens = nil
	}

	ticker := time.NewTicker(POLL_INTERVAL)
	defer ticker.Stop()

	log.Println("[SNIPER] Watcher running")
	for {
		select {
		case <-ctx.Done():
			log.Println("[SNIPER] Watcher stopped")
			return
		case token, open := <-tokens:
			if !open {
				log.Println("[SNIPER] Expiration channel closed, poll-only mode")
				tokens = nil
				continue
			}
			if auctionID, ok := ParseTimerToken(token); ok {
				w.close(ctx, auctionID)
			}
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *Watcher) close(ctx context.Context, auctionID string) {
	if _, err := w.engine.Close(ctx, auctionID); err != nil {
		if errors.Is(err, ErrAuctionClosed) {
			// Duplicate notification; another instance already closed it.
			return
		}
		log.Printf("[SNIPER] Close %s failed: %v", auctionID, err)
	}
}

// poll closes any open auction whose timer token has expired without a
// delivered notification.
func (w *Watcher) poll(ctx context.Context) {
	auction, err := w.engine.Active(ctx)
	if err != nil {
		log.Printf("[SNIPER] Poll: %v", err)
		return
	}
	if auction == nil || auction.Status != StatusOpen {
		return
	}

	armed, err := w.engine.store.TimerExists(ctx, TimerToken(auction.ID))
	if err != nil {
		log.Printf("[SNIPER] Poll timer check: %v", err)
		return
	}
	if armed {
		return
	}

	log.Printf("[SNIPER] Poll fallback closing auction %s", auction.ID)
	w.close(ctx, auction.ID)
}
