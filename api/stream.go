package api

import (
	"net/http"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"chip-todo/domain"
)

// changeEvent is pushed to stream subscribers after every successful
// mutation so browsers know to re-query.
type changeEvent struct {
	Type    string `json:"type"`
	WeekKey string `json:"weekKey"`
}

type updateBroker struct {
	mu   sync.Mutex
	subs map[chan changeEvent]struct{}
}

func newUpdateBroker() *updateBroker {
	return &updateBroker{subs: make(map[chan changeEvent]struct{})}
}

func (b *updateBroker) subscribe() chan changeEvent {
	ch := make(chan changeEvent, 1)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *updateBroker) unsubscribe(ch chan changeEvent) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
}

// notify never blocks; a subscriber that has not drained its previous event
// misses this one and re-queries on the pending one anyway.
func (b *updateBroker) notify(ev changeEvent) {
	b.mu.Lock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	b.mu.Unlock()
}

func streamChanges(board Board, broker *updateBroker) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}
		ctx := c.Request().Context()
		ch := broker.subscribe()
		defer broker.unsubscribe(ch)

		ev := changeEvent{Type: domain.BoardChanged, WeekKey: board.CurrentWeek().Key()}
		for {
			data, err := sonic.ConfigStd.Marshal(ev)
			if err != nil {
				c.Logger().Error(err)
				return err
			}
			if _, err := c.Response().Write([]byte("event: " + ev.Type + "\ndata: ")); err != nil {
				return err
			}
			if _, err := c.Response().Write(data); err != nil {
				return err
			}
			if _, err := c.Response().Write([]byte("\n\n")); err != nil {
				return err
			}
			flusher.Flush()
			select {
			case <-ctx.Done():
				return nil
			case ev = <-ch:
			}
		}
	}
}
