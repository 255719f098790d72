package inbox

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tOgg1/bazaar/internal/logging"
	"github.com/tOgg1/bazaar/internal/market"
	"github.com/tOgg1/bazaar/internal/poll"
)

// DefaultThreadInterval is the open-thread refresh period.
const DefaultThreadInterval = 5 * time.Second

// ThreadSource is the part of the API an open chat needs.
type ThreadSource interface {
	History(ctx context.Context, otherUserID, productID, token string) ([]market.Message, error)
	SendMessage(ctx context.Context, receiverID, productID, content, token string) (market.Message, error)
	MarkRead(ctx context.Context, otherUserID, productID, token string)
}

// Thread is one open chat with another user about one product.
type Thread struct {
	source      ThreadSource
	poller      *poll.Poller
	logger      zerolog.Logger
	otherUserID string
	productID   string
	changed     chan struct{}

	mu         sync.RWMutex
	session    market.Session
	sessionGen uint64
	issued     uint64
	applied    uint64
	haltErr    error
	messages   []market.Message
	draft      string
}

// NewThread creates a stopped thread view.
func NewThread(source ThreadSource, otherUserID, productID string, interval time.Duration) *Thread {
	if interval <= 0 {
		interval = DefaultThreadInterval
	}
	otherUserID = strings.TrimSpace(otherUserID)
	productID = strings.TrimSpace(productID)
	t := &Thread{
		source:      source,
		logger:      logging.WithConversation(logging.Component("thread"), otherUserID, productID),
		otherUserID: otherUserID,
		productID:   productID,
		changed:     make(chan struct{}, 1),
	}
	t.poller = poll.New("thread", interval, t.refresh)
	return t
}

// Key returns the conversation key of the thread.
func (t *Thread) Key() string {
	return market.ConversationKey(t.productID, t.otherUserID)
}

// Start adopts session and begins polling the history.
func (t *Thread) Start(session market.Session) error {
	if !session.Active() {
		return poll.ErrNoToken
	}
	t.setSession(session)
	t.mu.Lock()
	t.haltErr = nil
	t.mu.Unlock()
	return t.poller.Start(session.Token)
}

// Stop halts polling. Responses still in flight are discarded.
func (t *Thread) Stop() {
	t.poller.Stop()
}

// Done is closed once the polling goroutine has exited.
func (t *Thread) Done() <-chan struct{} {
	return t.poller.Done()
}

// Err returns the auth error that stopped polling, if any.
func (t *Thread) Err() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.haltErr
}

func (t *Thread) setSession(session market.Session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session.User.ID != session.User.ID {
		t.messages = nil
	}
	t.session = session
	t.sessionGen++
}

// SetSession adopts session. An inactive session stops polling.
func (t *Thread) SetSession(session market.Session) {
	t.setSession(session)
	if !session.Active() {
		t.poller.Stop()
	}
}

// Changed receives a value after the history changes. Several changes
// between reads collapse into one.
func (t *Thread) Changed() <-chan struct{} {
	return t.changed
}

func (t *Thread) signal() {
	select {
	case t.changed <- struct{}{}:
	default:
	}
}

// Messages returns the history oldest first, as the server ordered it.
func (t *Thread) Messages() []market.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]market.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Draft returns content that has not been sent yet.
func (t *Thread) Draft() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.draft
}

// SetDraft replaces the unsent content.
func (t *Thread) SetDraft(content string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.draft = content
}

func (t *Thread) begin() request {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.issued++
	return request{session: t.session, gen: t.sessionGen, seq: t.issued}
}

func (t *Thread) acceptLocked(r request, msgs []market.Message) bool {
	if r.gen != t.sessionGen || r.seq <= t.applied {
		return false
	}
	t.applied = r.seq
	t.messages = msgs
	return true
}

// Refresh fetches the history once and then marks the thread read. On
// failure the previous history is kept and the error returned.
func (t *Thread) Refresh(ctx context.Context) error {
	r := t.begin()
	if !r.session.Active() {
		return market.AuthError("refresh thread", "not signed in", 0)
	}

	msgs, err := t.source.History(ctx, t.otherUserID, t.productID, r.session.Token)
	if err != nil {
		logging.Err(t.logger.Warn(), err).Msg("history refresh failed")
		return err
	}

	t.mu.Lock()
	accepted := t.acceptLocked(r, msgs)
	t.mu.Unlock()
	if accepted {
		t.signal()
		t.source.MarkRead(ctx, t.otherUserID, t.productID, r.session.Token)
	}
	return nil
}

func (t *Thread) refresh(ctx context.Context, tick poll.Tick) {
	r := t.begin()
	if !r.session.Active() {
		t.poller.Stop()
		return
	}

	msgs, err := t.source.History(ctx, t.otherUserID, t.productID, r.session.Token)
	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return
		}
		if errors.Is(err, market.ErrAuth) {
			logging.Err(t.logger.Warn(), err).Msg("session rejected; thread polling stopped")
			t.mu.Lock()
			t.haltErr = err
			t.mu.Unlock()
			t.poller.Stop()
			return
		}
		logging.Err(t.logger.Warn(), err).Uint64("gen", tick.Gen).Msg("history refresh failed")
		return
	}

	var accepted bool
	t.poller.Apply(tick.Gen, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		accepted = t.acceptLocked(r, msgs)
	})
	if !accepted {
		return
	}
	t.logger.Debug().Int("messages", len(msgs)).Msg("thread refreshed")
	t.signal()
	t.source.MarkRead(ctx, t.otherUserID, t.productID, r.session.Token)
}

// Send posts content to the other user. Blank content is rejected before
// any request. On failure the content is kept as the draft.
func (t *Thread) Send(ctx context.Context, content string) (market.Message, error) {
	if strings.TrimSpace(content) == "" {
		return market.Message{}, market.ValidationError("send", "content is required", nil)
	}

	t.mu.Lock()
	session := t.session
	t.draft = ""
	t.mu.Unlock()

	msg, err := t.source.SendMessage(ctx, t.otherUserID, t.productID, content, session.Token)
	if err != nil {
		t.SetDraft(content)
		logging.Err(t.logger.Warn(), err).Msg("send failed; draft kept")
		return market.Message{}, err
	}
	if msg.ID == "" {
		msg.ID = "local-" + uuid.NewString()
	}

	t.mu.Lock()
	t.messages = append(t.messages, msg)
	t.mu.Unlock()
	t.signal()
	return msg, nil
}
