package dosing

import (
	"sync"
	"time"

	"github.com/plantio/autowater/internal/model/messages"
)

// maxFeedbackPerPlant bounds the retained feedback window per plant.
const maxFeedbackPerPlant = 50

// FeedbackLog is an in-memory, bounded, per-plant feedback history. The
// dosing service fills it from the feedback topic and hands it to the
// blender as a FeedbackSource.
type FeedbackLog struct {
	mu      sync.RWMutex
	entries map[string][]messages.FeedbackEntry
}

func NewFeedbackLog() *FeedbackLog {
	return &FeedbackLog{entries: make(map[string][]messages.FeedbackEntry)}
}

// Add records one feedback entry, newest-first.
func (l *FeedbackLog) Add(plantID, feedback string, volumeML float64, at time.Time) {
	if plantID == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	list := append([]messages.FeedbackEntry{{
		PlantID:   plantID,
		Feedback:  feedback,
		VolumeML:  volumeML,
		Timestamp: at,
	}}, l.entries[plantID]...)
	if len(list) > maxFeedbackPerPlant {
		list = list[:maxFeedbackPerPlant]
	}
	l.entries[plantID] = list
}

// ListFeedback returns a copy of the plant's feedback history.
func (l *FeedbackLog) ListFeedback(plantID string) []messages.FeedbackEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	src := l.entries[plantID]
	if len(src) == 0 {
		return nil
	}
	out := make([]messages.FeedbackEntry, len(src))
	copy(out, src)
	return out
}
