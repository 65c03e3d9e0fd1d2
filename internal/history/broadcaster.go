package history

import (
	"sync"

	"github.com/dalfonso89/currency-converter/internal/models"
)

type subscriber struct {
	limit   int
	channel chan []models.ConversionRecord
}

// Broadcaster fans recent-history lists out to subscribers.
// Each subscriber holds at most one pending list; a newer list replaces an unread one.
type Broadcaster struct {
	mutex       sync.Mutex
	nextID      uint64
	subscribers map[uint64]*subscriber
}

// NewBroadcaster creates an empty broadcaster
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subscribers: make(map[uint64]*subscriber)}
}

func (broadcaster *Broadcaster) add(limit int) (uint64, *subscriber) {
	broadcaster.mutex.Lock()
	defer broadcaster.mutex.Unlock()

	broadcaster.nextID++
	entry := &subscriber{limit: limit, channel: make(chan []models.ConversionRecord, 1)}
	broadcaster.subscribers[broadcaster.nextID] = entry
	return broadcaster.nextID, entry
}

func (broadcaster *Broadcaster) remove(id uint64) {
	broadcaster.mutex.Lock()
	defer broadcaster.mutex.Unlock()

	if entry, found := broadcaster.subscribers[id]; found {
		delete(broadcaster.subscribers, id)
		close(entry.channel)
	}
}

// maxLimit returns the largest limit any subscriber asked for, or 0 without subscribers
func (broadcaster *Broadcaster) maxLimit() int {
	broadcaster.mutex.Lock()
	defer broadcaster.mutex.Unlock()

	largest := 0
	for _, entry := range broadcaster.subscribers {
		if entry.limit > largest {
			largest = entry.limit
		}
	}
	return largest
}

// Count returns the number of live subscribers
func (broadcaster *Broadcaster) Count() int {
	broadcaster.mutex.Lock()
	defer broadcaster.mutex.Unlock()
	return len(broadcaster.subscribers)
}

// publish delivers newest-first records, trimmed to each subscriber's limit
func (broadcaster *Broadcaster) publish(records []models.ConversionRecord) {
	broadcaster.mutex.Lock()
	defer broadcaster.mutex.Unlock()

	for _, entry := range broadcaster.subscribers {
		deliver(entry, trim(records, entry.limit))
	}
}

func deliver(entry *subscriber, records []models.ConversionRecord) {
	select {
	case entry.channel <- records:
		return
	default:
	}

	// drop the unread list and keep the newest
	select {
	case <-entry.channel:
	default:
	}
	select {
	case entry.channel <- records:
	default:
	}
}

func trim(records []models.ConversionRecord, limit int) []models.ConversionRecord {
	if limit > len(records) {
		limit = len(records)
	}
	trimmed := make([]models.ConversionRecord, limit)
	copy(trimmed, records[:limit])
	return trimmed
}
