package services

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"duel-arena/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const (
	keepaliveInterval = 15 * time.Second
	replayBatch       = 200
)

func setSSEHeaders(c *fiber.Ctx) {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx
}

func writeEvent(w *bufio.Writer, evt models.MatchEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", evt.Seq, evt.Type, data); err != nil {
		return err
	}
	return w.Flush()
}

// lastEventID reads the resume cursor from Last-Event-ID or ?since=.
func lastEventID(c *fiber.Ctx) uint64 {
	raw := c.Get("Last-Event-ID")
	if raw == "" {
		raw = c.Query("since")
	}
	seq, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return seq
}

// replayEvents loads outbox rows of matchID after seq.
func replayEvents(db *gorm.DB, matchID string, after uint64) ([]models.MatchEvent, error) {
	var events []models.MatchEvent
	err := db.Where("match_id = ? AND seq > ?", matchID, after).
		Order("seq ASC").
		Limit(replayBatch).
		Find(&events).Error
	return events, err
}

// StreamMatchEvents streams a match's events over SSE. Missed events are
// replayed from the outbox, then live events follow. Each event carries its
// sequence number as the SSE id so clients resume with Last-Event-ID.
func (s *MatchService) StreamMatchEvents(c *fiber.Ctx) error {
	matchID := c.Params("id")
	if _, err := s.loadMatch(s.DB.WithContext(c.UserContext()), matchID); err != nil {
		return err
	}
	after := lastEventID(c)

	// Subscribe before replaying so nothing falls between the two.
	subCtx, cancelSub := context.WithCancel(context.Background())
	live, unsubscribe, err := s.Bus.Subscribe(subCtx, MatchTopic(matchID))
	if err != nil {
		cancelSub()
		return err
	}

	setSSEHeaders(c)
	done := c.Context().Done()
	db := s.DB

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancelSub()
		defer unsubscribe()

		cursor := after
		for {
			batch, err := replayEvents(db, matchID, cursor)
			if err != nil {
				log.Printf("SSE replay error for match %s: %v", matchID, err)
				return
			}
			for _, evt := range batch {
				if err := writeEvent(w, evt); err != nil {
					return
				}
				cursor = evt.Seq
			}
			if len(batch) < replayBatch {
				break
			}
		}

		w.WriteString(":\n\n")
		if err := w.Flush(); err != nil {
			return
		}

		ticker := time.NewTicker(keepaliveInterval)
		defer ticker.Stop()
		for {
			select {
			case evt, ok := <-live:
				if !ok {
					return
				}
				if evt.Seq <= cursor {
					continue
				}
				if err := writeEvent(w, evt); err != nil {
					// Client disconnected
					return
				}
				cursor = evt.Seq
			case <-ticker.C:
				w.WriteString(":\n\n")
				if err := w.Flush(); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	})
	return nil
}

// StreamPlayerEvents streams events addressed to one player, such as the
// pairing of their queue ticket. There is no replay; clients poll
// /queue/status after reconnecting.
func StreamPlayerEvents(c *fiber.Ctx, bus EventBus, player string) error {
	subCtx, cancelSub := context.WithCancel(context.Background())
	live, unsubscribe, err := bus.Subscribe(subCtx, PlayerTopic(player))
	if err != nil {
		cancelSub()
		return err
	}

	setSSEHeaders(c)
	done := c.Context().Done()

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancelSub()
		defer unsubscribe()

		w.WriteString(":\n\n")
		if err := w.Flush(); err != nil {
			return
		}

		ticker := time.NewTicker(keepaliveInterval)
		defer ticker.Stop()
		for {
			select {
			case evt, ok := <-live:
				if !ok {
					return
				}
				if err := writeEvent(w, evt); err != nil {
					return
				}
			case <-ticker.C:
				w.WriteString(":\n\n")
				if err := w.Flush(); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	})
	return nil
}
