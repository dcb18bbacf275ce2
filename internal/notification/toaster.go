package notification

import (
	"sync"
	"time"
)

// DefaultAlertDuration is how long a transient alert stays up.
const DefaultAlertDuration = 2 * time.Second

// Alert is one transient notification message.
type Alert struct {
	Key     string `json:"key"`
	Message string `json:"message"`
	PostID  string `json:"postId"`
}

// Toaster shows alerts and dismisses each one after a fixed duration.
type Toaster struct {
	duration  time.Duration
	onShow    func(Alert)
	onDismiss func(Alert)

	mu     sync.Mutex
	active map[string]*time.Timer
	closed bool
}

// NewToaster creates a Toaster. Either callback may be nil.
func NewToaster(duration time.Duration, onShow, onDismiss func(Alert)) *Toaster {
	if duration <= 0 {
		duration = DefaultAlertDuration
	}
	return &Toaster{
		duration:  duration,
		onShow:    onShow,
		onDismiss: onDismiss,
		active:    make(map[string]*time.Timer),
	}
}

// Show displays a and schedules its dismissal.
func (t *Toaster) Show(a Alert) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	if prev, ok := t.active[a.Key]; ok {
		prev.Stop()
	}
	t.active[a.Key] = time.AfterFunc(t.duration, func() { t.dismiss(a) })
	t.mu.Unlock()

	if t.onShow != nil {
		t.onShow(a)
	}
}

func (t *Toaster) dismiss(a Alert) {
	t.mu.Lock()
	_, ok := t.active[a.Key]
	delete(t.active, a.Key)
	closed := t.closed
	t.mu.Unlock()

	if ok && !closed && t.onDismiss != nil {
		t.onDismiss(a)
	}
}

// Visible returns the number of alerts currently shown.
func (t *Toaster) Visible() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

// Close cancels pending dismissals; no callback runs afterwards.
func (t *Toaster) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for key, timer := range t.active {
		timer.Stop()
		delete(t.active, key)
	}
}
