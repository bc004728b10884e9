package services

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"duel-arena/models"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Event types pushed to match and player topics.
const (
	EventMatchStart   = "match:start"
	EventMatchEntry   = "match:entry"
	EventMatchCommit  = "match:commit"
	EventMatchReveal  = "match:reveal"
	EventRoundResult  = "match:round_result"
	EventMatchEnd     = "match:end"
	EventMatchSettled = "match:settled"
)

// MatchTopic carries every event of one match.
func MatchTopic(matchID string) string { return "matches/" + matchID }

// PlayerTopic carries events addressed to one player, such as a queue pairing.
func PlayerTopic(address string) string { return "players/" + address }

// EventBus fans match events out to live subscribers. Delivery is best
// effort; the match_events outbox is the source for replay.
type EventBus interface {
	Publish(ctx context.Context, topic string, evt models.MatchEvent) error
	// Subscribe returns a channel of events on topic and a cancel func that
	// releases the subscription and closes the channel.
	Subscribe(ctx context.Context, topic string) (<-chan models.MatchEvent, func(), error)
}

// newEvent builds an outbox row. It is persisted by recordEvent.
func newEvent(matchID, eventType, sender string, payload any) models.MatchEvent {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte("{}")
	}
	return models.MatchEvent{
		ID:      uuid.NewString(),
		MatchID: matchID,
		Type:    eventType,
		Sender:  sender,
		Payload: datatypes.JSON(data),
	}
}

// recordEvent writes evt inside tx and returns the stored row (with Seq).
func recordEvent(tx *gorm.DB, matchID, eventType, sender string, payload any) (models.MatchEvent, error) {
	evt := newEvent(matchID, eventType, sender, payload)
	if err := tx.Create(&evt).Error; err != nil {
		return models.MatchEvent{}, err
	}
	return evt, nil
}

// publishAll pushes committed events to their match topic. Match starts are
// also pushed to both players so a queued player learns of the pairing.
func publishAll(ctx context.Context, bus EventBus, m *models.Match, events []models.MatchEvent) {
	if bus == nil {
		return
	}
	for _, evt := range events {
		if err := bus.Publish(ctx, MatchTopic(evt.MatchID), evt); err != nil {
			log.Printf("⚠️ [EVENTS] publish %s for match %s failed: %v", evt.Type, evt.MatchID, err)
		}
		if evt.Type == EventMatchStart && m != nil {
			for _, p := range []string{m.Player1, m.Player2} {
				if err := bus.Publish(ctx, PlayerTopic(p), evt); err != nil {
					log.Printf("⚠️ [EVENTS] notify %s of match %s failed: %v", p, evt.MatchID, err)
				}
			}
		}
	}
}

// LocalBus is an in-process EventBus for single-instance deployments.
type LocalBus struct {
	mu     sync.RWMutex
	subs   map[string]map[uint64]chan models.MatchEvent
	nextID uint64
	buffer int
}

func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[string]map[uint64]chan models.MatchEvent), buffer: 64}
}

func (b *LocalBus) Publish(_ context.Context, topic string, evt models.MatchEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs[topic] {
		select {
		case ch <- evt:
		default:
			// Slow subscriber; it catches up from the outbox on reconnect.
			log.Printf("⚠️ [EVENTS] dropping %s for lagging subscriber %d on %s", evt.Type, id, topic)
		}
	}
	return nil
}

func (b *LocalBus) Subscribe(_ context.Context, topic string) (<-chan models.MatchEvent, func(), error) {
	ch := make(chan models.MatchEvent, b.buffer)

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[uint64]chan models.MatchEvent)
	}
	b.subs[topic][id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[topic], id)
			if len(b.subs[topic]) == 0 {
				delete(b.subs, topic)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel, nil
}
