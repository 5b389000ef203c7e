// Package session owns the single chat session: it drives the ChatClient
// lifecycle as a finite state machine and publishes every transition to
// subscribers.
package session

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"wagate/internal/domain"
	"wagate/internal/metrics"
	"wagate/internal/notice"
)

// Notification is published once per transition, and for reported events
// such as auth failures.
type Notification struct {
	Event  domain.EventType `json:"event"`
	State  State            `json:"state"`
	Status string           `json:"status"`
	QR     string           `json:"qr,omitempty"` // data URL, EventQR only
	Time   time.Time        `json:"time"`
}

// Observer receives notifications in emission order. It runs on the
// publishing goroutine and must not block.
type Observer func(Notification)

// Config wires a Controller.
type Config struct {
	Client  domain.ChatClient
	Logger  *slog.Logger
	Notices *notice.Catalog

	// RenderQR defaults to PNGDataURL.
	RenderQR QRRenderer

	// OnMessage receives every inbound message on its own goroutine.
	OnMessage func(ctx context.Context, msg domain.InboundMessage)
	// OnCall receives call notifications on their own goroutine.
	OnCall func(ctx context.Context, call domain.Call)

	// ReconnectBackoff delays reinitialization after a disconnect, doubling
	// per consecutive disconnect up to MaxReconnectBackoff. Zero reconnects
	// immediately.
	ReconnectBackoff    time.Duration
	MaxReconnectBackoff time.Duration
}

// Controller is the session singleton.
type Controller struct {
	client    domain.ChatClient
	logger    *slog.Logger
	notices   *notice.Catalog
	renderQR  QRRenderer
	onMessage func(context.Context, domain.InboundMessage)
	onCall    func(context.Context, domain.Call)

	backoff    time.Duration
	maxBackoff time.Duration

	mu          sync.RWMutex
	state       State
	lastQR      string
	info        *domain.SessionInfo
	observers   map[int]Observer
	nextID      int
	disconnects int

	// pubMu orders transition+publish pairs across goroutines.
	pubMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a controller and registers it as the client's event handler.
func New(cfg Config) *Controller {
	if cfg.RenderQR == nil {
		cfg.RenderQR = PNGDataURL
	}
	if cfg.Notices == nil {
		cfg.Notices = notice.Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxReconnectBackoff < cfg.ReconnectBackoff {
		cfg.MaxReconnectBackoff = cfg.ReconnectBackoff
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		client:     cfg.Client,
		logger:     cfg.Logger,
		notices:    cfg.Notices,
		renderQR:   cfg.RenderQR,
		onMessage:  cfg.OnMessage,
		onCall:     cfg.OnCall,
		backoff:    cfg.ReconnectBackoff,
		maxBackoff: cfg.MaxReconnectBackoff,
		state:      Unauthenticated,
		observers:  make(map[int]Observer),
		ctx:        ctx,
		cancel:     cancel,
	}
	cfg.Client.OnEvent(c.handleEvent)
	return c
}

// Start enters Unauthenticated and initializes the client.
func (c *Controller) Start(ctx context.Context) error {
	c.fire(triggerInit, Notification{Status: c.notices.Get(notice.StatusConnecting)})
	return c.client.Initialize(ctx)
}

// Close stops pending reconnects, waits for in-flight handlers and destroys
// the client.
func (c *Controller) Close(ctx context.Context) error {
	c.cancel()
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		c.logger.Warn("session close timed out waiting for handlers")
	}
	return c.client.Destroy(ctx)
}

// CurrentState returns the lifecycle state.
func (c *Controller) CurrentState() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Info returns the logged-in account, or nil before Ready.
func (c *Controller) Info() *domain.SessionInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.info == nil {
		return nil
	}
	info := *c.info
	return &info
}

// LastQR returns the latest rendered QR data URL while QR is pending.
func (c *Controller) LastQR() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastQR
}

// Status returns the human-readable status for the current state.
func (c *Controller) Status() string {
	switch c.CurrentState() {
	case QrPending:
		return c.notices.Get(notice.StatusQR)
	case Authenticated:
		return c.notices.Get(notice.StatusAuthenticated)
	case Ready:
		return c.notices.Get(notice.StatusReady)
	case Disconnected:
		return c.notices.Get(notice.StatusDisconnected)
	default:
		return c.notices.Get(notice.StatusConnecting)
	}
}

// Subscribe registers an observer and returns its cancel func.
func (c *Controller) Subscribe(obs Observer) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.observers[id] = obs
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.observers, id)
		c.mu.Unlock()
	}
}

func (c *Controller) handleEvent(ev domain.Event) {
	switch ev.Type {
	case domain.EventQR:
		c.logger.Info("qr received")
		url, err := c.renderQR(ev.QR)
		if err != nil {
			c.logger.Error("qr render failed", "err", err)
		}
		c.fire(domain.EventQR, Notification{Status: c.notices.Get(notice.StatusQR), QR: url})

	case domain.EventAuthenticated:
		c.logger.Info("session authenticated")
		c.fire(domain.EventAuthenticated, Notification{Status: c.notices.Get(notice.StatusAuthenticated)})

	case domain.EventReady:
		c.logger.Info("session ready")
		c.fire(domain.EventReady, Notification{Status: c.notices.Get(notice.StatusReady)})

	case domain.EventAuthFailure:
		c.logger.Warn("authentication failure", "reason", ev.Reason)
		c.report(Notification{Event: domain.EventAuthFailure, Status: c.notices.Get(notice.StatusAuthFailure)})

	case domain.EventDisconnected:
		c.logger.Warn("session disconnected", "reason", ev.Reason)
		if c.fire(domain.EventDisconnected, Notification{Status: c.notices.Get(notice.StatusDisconnected)}) {
			c.scheduleReinit(ev.Reason)
		}

	case domain.EventMessage:
		if ev.Message == nil {
			return
		}
		metrics.MessagesReceived.Inc()
		c.logger.Debug("message received", "from", ev.Message.From, "id", ev.Message.ID)
		if c.onMessage != nil {
			msg := *ev.Message
			c.goHandle(func(ctx context.Context) { c.onMessage(ctx, msg) })
		}

	case domain.EventCall:
		if ev.Call == nil {
			return
		}
		c.logger.Info("call received", "from", ev.Call.From, "video", ev.Call.IsVideo)
		if c.onCall != nil {
			call := *ev.Call
			c.goHandle(func(ctx context.Context) { c.onCall(ctx, call) })
		}

	case domain.EventLoadingScreen:
		c.logger.Info("loading screen", "percent", ev.Percent, "message", ev.Text)

	default:
		c.logger.Debug("ignoring chat client event", "type", ev.Type)
	}
}

// fire applies trigger and, if it is a transition, publishes n. It reports
// whether the state changed.
func (c *Controller) fire(trigger domain.EventType, n Notification) bool {
	var info *domain.SessionInfo
	if trigger == domain.EventReady {
		info = c.client.Info()
	}

	c.pubMu.Lock()
	defer c.pubMu.Unlock()

	c.mu.Lock()
	from := c.state
	to, ok := transition(from, trigger)
	if !ok {
		c.mu.Unlock()
		c.logger.Warn("ignoring out-of-order session event", "event", trigger, "state", from)
		return false
	}
	c.state = to
	switch trigger {
	case triggerInit:
		c.lastQR = ""
		c.info = nil
	case domain.EventQR:
		c.lastQR = n.QR
	case domain.EventAuthenticated:
		c.lastQR = ""
	case domain.EventReady:
		c.lastQR = ""
		c.disconnects = 0
		if info != nil {
			cp := *info
			c.info = &cp
		}
	case domain.EventDisconnected:
		c.lastQR = ""
		c.info = nil
		c.disconnects++
	}
	c.mu.Unlock()

	metrics.SessionState.Set(int64(to))
	c.logger.Debug("session transition", "from", from, "to", to, "trigger", trigger)

	n.Event = trigger
	n.State = to
	c.publishLocked(n)
	return true
}

// report publishes a notification that is not a transition.
func (c *Controller) report(n Notification) {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()
	n.State = c.CurrentState()
	c.publishLocked(n)
}

func (c *Controller) publishLocked(n Notification) {
	if n.Time.IsZero() {
		n.Time = time.Now()
	}
	c.mu.RLock()
	ids := make([]int, 0, len(c.observers))
	for id := range c.observers {
		ids = append(ids, id)
	}
	observers := make([]Observer, 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		observers = append(observers, c.observers[id])
	}
	c.mu.RUnlock()

	for _, obs := range observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("session observer panic", "event", n.Event, "panic", r)
				}
			}()
			obs(n)
		}()
	}
}

// scheduleReinit tears the client down and starts it again. There is no
// guard against overlapping reinitializations.
func (c *Controller) scheduleReinit(reason string) {
	delay := c.reconnectDelay()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if delay > 0 {
			c.logger.Info("reconnecting after backoff", "delay", delay, "reason", reason)
			timer := time.NewTimer(delay)
			defer timer.Stop()
			select {
			case <-c.ctx.Done():
				return
			case <-timer.C:
			}
		}
		if c.ctx.Err() != nil {
			return
		}
		metrics.Reconnects.Inc()
		if err := c.client.Destroy(c.ctx); err != nil {
			c.logger.Warn("destroy before reinitialize failed", "err", err)
		}
		c.fire(triggerInit, Notification{Status: c.notices.Get(notice.StatusConnecting)})
		if err := c.client.Initialize(c.ctx); err != nil {
			c.logger.Error("reinitialize failed", "err", err)
		}
	}()
}

func (c *Controller) reconnectDelay() time.Duration {
	if c.backoff <= 0 {
		return 0
	}
	c.mu.RLock()
	n := c.disconnects
	c.mu.RUnlock()
	d := c.backoff
	for i := 1; i < n && d < c.maxBackoff; i++ {
		d *= 2
	}
	if d > c.maxBackoff {
		d = c.maxBackoff
	}
	return d
}

func (c *Controller) goHandle(fn func(ctx context.Context)) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("session handler panic", "panic", r)
			}
		}()
		fn(c.ctx)
	}()
}
