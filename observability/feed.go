// Package observability turns the relay's logs and membership changes into a feed
// that any number of views can follow.
package observability

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"context"
	"log/slog"
	"sync"
	"time"
)

var _ contract.IUserListObserver = (*Feed)(nil)

// Line is one status record as seen by a view.
type Line struct {
	At      time.Time
	Level   slog.Level
	Message string
	Attrs   map[string]string
}

type Subscriber interface {
	OnLine(line Line)
	OnUsers(users []domain.UserEntry)
}

// Feed fans lines and user lists out to its subscribers, synchronously and in publish order.
// Subscribers must not log through the feed they listen to.
type Feed struct {
	mu          sync.RWMutex
	nextID      int
	subscribers map[int]Subscriber
	users       []domain.UserEntry
}

func NewFeed() *Feed {
	return &Feed{subscribers: make(map[int]Subscriber)}
}

// Subscribe registers s and replays the current user list to it.
// The returned func removes it; calling it twice is harmless.
func (f *Feed) Subscribe(s Subscriber) func() {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subscribers[id] = s
	users := f.users
	f.mu.Unlock()

	if users != nil {
		s.OnUsers(users)
	}
	return func() {
		f.mu.Lock()
		delete(f.subscribers, id)
		f.mu.Unlock()
	}
}

func (f *Feed) Publish(line Line) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, s := range f.subscribers {
		s.OnLine(line)
	}
}

func (f *Feed) PublishUsers(users []domain.UserEntry) {
	f.mu.Lock()
	f.users = append([]domain.UserEntry{}, users...)
	f.mu.Unlock()

	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, s := range f.subscribers {
		s.OnUsers(users)
	}
}

// FeedHandler is a slog.Handler that forwards to next and publishes to the feed.
type FeedHandler struct {
	next  slog.Handler
	feed  *Feed
	attrs []slog.Attr
	group string
}

var _ slog.Handler = (*FeedHandler)(nil)

func NewFeedHandler(next slog.Handler, feed *Feed) *FeedHandler {
	return &FeedHandler{next: next, feed: feed}
}

func (h *FeedHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *FeedHandler) Handle(ctx context.Context, record slog.Record) error {
	line := Line{
		At:      record.Time,
		Level:   record.Level,
		Message: record.Message,
		Attrs:   make(map[string]string, record.NumAttrs()+len(h.attrs)),
	}
	for _, a := range h.attrs {
		line.Attrs[a.Key] = a.Value.String()
	}
	record.Attrs(func(a slog.Attr) bool {
		line.Attrs[h.key(a.Key)] = a.Value.String()
		return true
	})
	h.feed.Publish(line)
	return h.next.Handle(ctx, record)
}

func (h *FeedHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	prefixed := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	prefixed = append(prefixed, h.attrs...)
	for _, a := range attrs {
		prefixed = append(prefixed, slog.Attr{Key: h.key(a.Key), Value: a.Value})
	}
	return &FeedHandler{next: h.next.WithAttrs(attrs), feed: h.feed, attrs: prefixed, group: h.group}
}

func (h *FeedHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &FeedHandler{next: h.next.WithGroup(name), feed: h.feed, attrs: h.attrs, group: h.key(name)}
}

func (h *FeedHandler) key(k string) string {
	if h.group == "" {
		return k
	}
	return h.group + "." + k
}
