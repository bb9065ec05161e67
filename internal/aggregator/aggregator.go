// Package aggregator folds interaction events into per-contact rolling
// statistics for the scorers to consume.
package aggregator

import (
	"sort"
	"sync"
	"time"

	"github.com/qntmpulse/relationship-engine/internal/domain"
)

// retentionWindow bounds how far back per-event timestamps are kept for
// the rolling window counts. Totals are never pruned.
const retentionWindow = 90 * 24 * time.Hour

// Aggregator maintains per-contact interaction statistics. It is safe
// for concurrent use and idempotent under replay: an event with the same
// (contact, kind, timestamp) triple is counted once.
type Aggregator struct {
	mu    sync.RWMutex
	stats map[string]*contactStats
	seen  map[string]struct{}

	// now is swappable for tests.
	now func() time.Time
}

type contactStats struct {
	emailsSent       int
	emailsReceived   int
	messagesSent     int
	messagesReceived int
	meetings         int

	firstAt             *time.Time
	lastAt              *time.Time
	lastEmailSentAt     *time.Time
	lastEmailReceivedAt *time.Time
	lastMeetingAt       *time.Time

	// Timestamps of events within the retention window, kept sorted.
	recent []time.Time
}

// New creates an empty aggregator.
func New() *Aggregator {
	return &Aggregator{
		stats: make(map[string]*contactStats),
		seen:  make(map[string]struct{}),
		now:   time.Now,
	}
}

// SetClock overrides the aggregator's clock. Test hook.
func (a *Aggregator) SetClock(now func() time.Time) {
	a.mu.Lock()
	a.now = now
	a.mu.Unlock()
}

// Record folds one interaction event into the contact's statistics.
// Replays of an already-seen event are ignored.
func (a *Aggregator) Record(event domain.InteractionEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	key := event.DedupKey()
	if _, dup := a.seen[key]; dup {
		return nil
	}
	a.seen[key] = struct{}{}

	cs := a.stats[event.ContactKey]
	if cs == nil {
		cs = &contactStats{}
		a.stats[event.ContactKey] = cs
	}

	ts := event.Timestamp
	switch event.Kind {
	case domain.InteractionEmailSent:
		cs.emailsSent++
		cs.lastEmailSentAt = laterOf(cs.lastEmailSentAt, ts)
	case domain.InteractionEmailReceived:
		cs.emailsReceived++
		cs.lastEmailReceivedAt = laterOf(cs.lastEmailReceivedAt, ts)
	case domain.InteractionMessageSent:
		cs.messagesSent++
	case domain.InteractionMessageReceived:
		cs.messagesReceived++
	case domain.InteractionMeeting:
		cs.meetings++
		cs.lastMeetingAt = laterOf(cs.lastMeetingAt, ts)
	}

	if cs.firstAt == nil || ts.Before(*cs.firstAt) {
		t := ts
		cs.firstAt = &t
	}
	cs.lastAt = laterOf(cs.lastAt, ts)

	if a.now().Sub(ts) <= retentionWindow {
		cs.recent = insertSorted(cs.recent, ts)
	}
	return nil
}

// Snapshot returns the current aggregate view for a contact. The second
// return value is false when the contact has never been seen.
func (a *Aggregator) Snapshot(contactKey string) (domain.AggregateStats, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	cs, ok := a.stats[contactKey]
	if !ok {
		return domain.AggregateStats{ContactKey: contactKey}, false
	}
	return a.snapshotLocked(contactKey, cs), true
}

// Keys returns all contact keys with recorded interactions.
func (a *Aggregator) Keys() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	keys := make([]string, 0, len(a.stats))
	for k := range a.stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Merge consolidates the statistics of the duplicate contacts into the
// primary and removes the duplicates. Called by the duplicate merge so
// recomputed scores see the combined history.
func (a *Aggregator) Merge(primaryKey string, duplicateKeys []string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	primary := a.stats[primaryKey]
	if primary == nil {
		primary = &contactStats{}
		a.stats[primaryKey] = primary
	}

	for _, dk := range duplicateKeys {
		if dk == primaryKey {
			continue
		}
		dup := a.stats[dk]
		if dup == nil {
			continue
		}
		primary.emailsSent += dup.emailsSent
		primary.emailsReceived += dup.emailsReceived
		primary.messagesSent += dup.messagesSent
		primary.messagesReceived += dup.messagesReceived
		primary.meetings += dup.meetings

		if dup.firstAt != nil && (primary.firstAt == nil || dup.firstAt.Before(*primary.firstAt)) {
			primary.firstAt = dup.firstAt
		}
		primary.lastAt = laterOfPtr(primary.lastAt, dup.lastAt)
		primary.lastEmailSentAt = laterOfPtr(primary.lastEmailSentAt, dup.lastEmailSentAt)
		primary.lastEmailReceivedAt = laterOfPtr(primary.lastEmailReceivedAt, dup.lastEmailReceivedAt)
		primary.lastMeetingAt = laterOfPtr(primary.lastMeetingAt, dup.lastMeetingAt)

		for _, ts := range dup.recent {
			primary.recent = insertSorted(primary.recent, ts)
		}
		delete(a.stats, dk)
	}
}

// Remove drops all statistics for a contact.
func (a *Aggregator) Remove(contactKey string) {
	a.mu.Lock()
	delete(a.stats, contactKey)
	a.mu.Unlock()
}

func (a *Aggregator) snapshotLocked(contactKey string, cs *contactStats) domain.AggregateStats {
	now := a.now()
	stats := domain.AggregateStats{
		ContactKey:          contactKey,
		EmailsSent:          cs.emailsSent,
		EmailsReceived:      cs.emailsReceived,
		MessagesSent:        cs.messagesSent,
		MessagesReceived:    cs.messagesReceived,
		Meetings:            cs.meetings,
		FirstInteractionAt:  cs.firstAt,
		LastInteractionAt:   cs.lastAt,
		LastEmailSentAt:     cs.lastEmailSentAt,
		LastEmailReceivedAt: cs.lastEmailReceivedAt,
		LastMeetingAt:       cs.lastMeetingAt,
	}
	stats.TotalInteractions = cs.emailsSent + cs.emailsReceived +
		cs.messagesSent + cs.messagesReceived + cs.meetings

	for _, ts := range cs.recent {
		age := now.Sub(ts)
		if age < 0 || age > retentionWindow {
			continue
		}
		stats.Count90d++
		if age <= 30*24*time.Hour {
			stats.Count30d++
		}
		if age <= 7*24*time.Hour {
			stats.Count7d++
		}
	}
	return stats
}

func laterOf(cur *time.Time, ts time.Time) *time.Time {
	if cur == nil || ts.After(*cur) {
		t := ts
		return &t
	}
	return cur
}

func laterOfPtr(a, b *time.Time) *time.Time {
	if b == nil {
		return a
	}
	return laterOf(a, *b)
}

func insertSorted(times []time.Time, ts time.Time) []time.Time {
	i := sort.Search(len(times), func(i int) bool { return times[i].After(ts) })
	times = append(times, time.Time{})
	copy(times[i+1:], times[i:])
	times[i] = ts
	return times
}
