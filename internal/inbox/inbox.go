// Package inbox holds the conversation list and open chat threads that a UI
// renders, refreshed by background pollers.
package inbox

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tOgg1/bazaar/internal/logging"
	"github.com/tOgg1/bazaar/internal/market"
	"github.com/tOgg1/bazaar/internal/metrics"
	"github.com/tOgg1/bazaar/internal/notify"
	"github.com/tOgg1/bazaar/internal/poll"
)

// DefaultInterval is the inbox refresh period.
const DefaultInterval = 10 * time.Second

const subscribeBuffer = 1

// ConversationSource lists every message involving the token's user.
type ConversationSource interface {
	Conversations(ctx context.Context, token string) ([]market.Message, error)
}

// Update is published to subscribers after each applied refresh.
type Update struct {
	Conversations []market.Conversation
	Unread        map[string]int
	HasNewMessage bool
	At            time.Time
}

// Inbox is the conversation list for the signed-in user.
type Inbox struct {
	source ConversationSource
	poller *poll.Poller
	logger zerolog.Logger
	now    func() time.Time
	unread notify.Flag

	mu            sync.RWMutex
	session       market.Session
	sessionGen    uint64
	issued        uint64
	applied       uint64
	haltErr       error
	conversations []market.Conversation
	counts        map[string]int
	refreshedAt   time.Time

	subsMu sync.Mutex
	subs   map[int]chan Update
	nextID int
}

// New creates a stopped inbox polling source every interval.
func New(source ConversationSource, interval time.Duration) *Inbox {
	if interval <= 0 {
		interval = DefaultInterval
	}
	i := &Inbox{
		source: source,
		logger: logging.Component("inbox"),
		now:    time.Now,
		counts: make(map[string]int),
		subs:   make(map[int]chan Update),
	}
	i.poller = poll.New("inbox", interval, i.refresh)
	return i
}

// Start adopts session and begins polling. An inactive session is refused
// with poll.ErrNoToken.
func (i *Inbox) Start(session market.Session) error {
	if !session.Active() {
		return poll.ErrNoToken
	}
	i.setSession(session)
	i.mu.Lock()
	i.haltErr = nil
	i.mu.Unlock()
	return i.poller.Start(session.Token)
}

// Stop halts polling. Responses still in flight are discarded.
func (i *Inbox) Stop() {
	i.poller.Stop()
}

// Done is closed once the polling goroutine has exited, either through Stop
// or because the server rejected the session.
func (i *Inbox) Done() <-chan struct{} {
	return i.poller.Done()
}

// Err returns the auth error that stopped polling, if any.
func (i *Inbox) Err() error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.haltErr
}

// Running reports whether the poller is active.
func (i *Inbox) Running() bool {
	return i.poller.Running()
}

// SetSession adopts session. Responses to requests made for the previous
// session are discarded. An inactive session stops polling.
func (i *Inbox) SetSession(session market.Session) {
	i.setSession(session)
	if !session.Active() {
		i.poller.Stop()
	}
}

func (i *Inbox) setSession(session market.Session) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.session.User.ID != session.User.ID {
		i.conversations = nil
		i.counts = make(map[string]int)
		i.unread.Clear()
	}
	i.session = session
	i.sessionGen++
}

// Conversations returns the latest reconciled list, newest first.
func (i *Inbox) Conversations() []market.Conversation {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make([]market.Conversation, len(i.conversations))
	copy(out, i.conversations)
	return out
}

// UnreadCounts returns unread message counts keyed by conversation key.
func (i *Inbox) UnreadCounts() map[string]int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make(map[string]int, len(i.counts))
	for k, v := range i.counts {
		out[k] = v
	}
	return out
}

// HasNewMessage reports the unread badge.
func (i *Inbox) HasNewMessage() bool {
	return i.unread.IsSet()
}

// ClearMessageNotification clears the badge until the next refresh that
// still finds unread messages. Messages are untouched.
func (i *Inbox) ClearMessageNotification() {
	i.unread.Clear()
}

// request stamps one fetch with the session it was made for and its issue
// order.
type request struct {
	session market.Session
	gen     uint64
	seq     uint64
}

func (i *Inbox) begin() request {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.issued++
	return request{session: i.session, gen: i.sessionGen, seq: i.issued}
}

// acceptLocked reports whether the response to r may replace the current
// state: r must belong to the current session and be newer than whatever
// was applied last.
func (i *Inbox) acceptLocked(r request) bool {
	if r.gen != i.sessionGen || r.seq <= i.applied {
		return false
	}
	i.applied = r.seq
	return true
}

// CheckMessages refreshes once outside the polling schedule. On failure the
// previous state is kept and the error returned.
func (i *Inbox) CheckMessages(ctx context.Context) error {
	r := i.begin()
	if !r.session.Active() {
		return market.AuthError("check messages", "not signed in", 0)
	}

	msgs, err := i.source.Conversations(ctx, r.session.Token)
	if err != nil {
		logging.Err(i.logger.Warn(), err).Msg("check messages failed")
		return err
	}

	i.mu.Lock()
	if !i.acceptLocked(r) {
		i.mu.Unlock()
		return nil
	}
	update := i.applyLocked(msgs)
	i.mu.Unlock()

	i.publish(update)
	return nil
}

func (i *Inbox) refresh(ctx context.Context, tick poll.Tick) {
	r := i.begin()
	if !r.session.Active() {
		i.poller.Stop()
		return
	}

	msgs, err := i.source.Conversations(ctx, r.session.Token)
	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return
		}
		if errors.Is(err, market.ErrAuth) {
			logging.Err(i.logger.Warn(), err).Msg("session rejected; inbox polling stopped")
			i.mu.Lock()
			i.haltErr = err
			i.mu.Unlock()
			i.poller.Stop()
			return
		}
		logging.Err(i.logger.Warn(), err).Uint64("gen", tick.Gen).Msg("inbox refresh failed")
		return
	}

	var update Update
	var accepted bool
	i.poller.Apply(tick.Gen, func() {
		i.mu.Lock()
		defer i.mu.Unlock()
		if accepted = i.acceptLocked(r); accepted {
			update = i.applyLocked(msgs)
		}
	})
	if accepted {
		i.publish(update)
	}
}

func (i *Inbox) applyLocked(msgs []market.Message) Update {
	userID := i.session.User.ID
	i.conversations = market.Reconcile(msgs, userID)
	i.counts = market.UnreadCount(msgs, userID)
	i.refreshedAt = i.now().UTC()
	hasNew := market.ComputeUnread(msgs, userID)
	i.unread.Set(hasNew)

	metrics.UnreadConversations.Set(float64(len(i.counts)))
	i.logger.Debug().
		Int("messages", len(msgs)).
		Int("conversations", len(i.conversations)).
		Bool("unread", hasNew).
		Msg("inbox refreshed")

	update := Update{
		Conversations: make([]market.Conversation, len(i.conversations)),
		Unread:        make(map[string]int, len(i.counts)),
		HasNewMessage: hasNew,
		At:            i.refreshedAt,
	}
	copy(update.Conversations, i.conversations)
	for k, v := range i.counts {
		update.Unread[k] = v
	}
	return update
}

// Subscribe returns a channel receiving the latest Update after each applied
// refresh, and a function that cancels the subscription. Slow readers only
// see the most recent update.
func (i *Inbox) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, subscribeBuffer)
	i.subsMu.Lock()
	id := i.nextID
	i.nextID++
	i.subs[id] = ch
	i.subsMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			i.subsMu.Lock()
			delete(i.subs, id)
			i.subsMu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (i *Inbox) publish(update Update) {
	i.subsMu.Lock()
	defer i.subsMu.Unlock()
	for _, ch := range i.subs {
		select {
		case ch <- update:
			continue
		default:
		}
		// Replace the undelivered update with the newer one.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- update:
		default:
		}
	}
}

// Find returns the conversation with the given key.
func (i *Inbox) Find(key string) (market.Conversation, bool) {
	key = strings.TrimSpace(key)
	i.mu.RLock()
	defer i.mu.RUnlock()
	for _, c := range i.conversations {
		if c.Key == key {
			return c, true
		}
	}
	return market.Conversation{}, false
}
