package bus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/trendgeo/agent/contract"
	"github.com/tanpawarit/trendgeo/agent/protocol"
	"github.com/tanpawarit/trendgeo/agent/storage"
)

const (
	defaultInboxSize   = 64
	defaultCallTimeout = 30 * time.Second
	closedSessionTTL   = 10 * time.Minute
)

var ErrAgentRunning = errors.New("agent is already running")

type route struct {
	protocol *Protocol
	handler  Handler
}

type inbound struct {
	env     *Envelope
	msg     protocol.Message
	capture *replyCapture
	done    chan struct{}
}

// Agent owns an address, a storage namespace and a set of protocols. All
// inbound messages are handled one at a time by the goroutine started in Run.
type Agent struct {
	name        string
	address     protocol.Address
	storage     storage.Store
	transport   Transport
	encoding    Encoding
	callTimeout time.Duration
	logger      zerolog.Logger
	now         func() time.Time
	inbox       chan inbound

	mu        sync.Mutex
	routes    map[protocol.Kind]route
	protocols []*Protocol
	pending   map[string]*pendingCall
	closed    map[string]time.Time
	running   bool
}

type AgentOption func(*Agent)

func WithStorage(s storage.Store) AgentOption {
	return func(a *Agent) {
		if s != nil {
			a.storage = s
		}
	}
}

func WithTransport(t Transport) AgentOption {
	return func(a *Agent) { a.transport = t }
}

func WithEncoding(enc Encoding) AgentOption {
	return func(a *Agent) {
		if enc != "" {
			a.encoding = enc
		}
	}
}

func WithCallTimeout(d time.Duration) AgentOption {
	return func(a *Agent) {
		if d > 0 {
			a.callTimeout = d
		}
	}
}

func WithInboxSize(n int) AgentOption {
	return func(a *Agent) {
		if n > 0 {
			a.inbox = make(chan inbound, n)
		}
	}
}

func WithClock(now func() time.Time) AgentOption {
	return func(a *Agent) {
		if now != nil {
			a.now = now
		}
	}
}

func WithLogger(l zerolog.Logger) AgentOption {
	return func(a *Agent) { a.logger = l }
}

func NewAgent(name string, address protocol.Address, opts ...AgentOption) (*Agent, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: agent name is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(address.String()) == "" {
		return nil, fmt.Errorf("%w: agent address is required", contractx.ErrValidation)
	}

	a := &Agent{
		name:        name,
		address:     address,
		storage:     storage.NewMemory(),
		encoding:    EncodingJSON,
		callTimeout: defaultCallTimeout,
		logger:      log.Logger.With().Str("agent", name).Str("address", address.String()).Logger(),
		now:         time.Now,
		inbox:       make(chan inbound, defaultInboxSize),
		routes:      make(map[protocol.Kind]route),
		pending:     make(map[string]*pendingCall),
		closed:      make(map[string]time.Time),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a, nil
}

func (a *Agent) Name() string              { return a.name }
func (a *Agent) Address() protocol.Address { return a.address }
func (a *Agent) Storage() storage.Store    { return a.storage }
func (a *Agent) Logger() *zerolog.Logger   { return &a.logger }

// SetTransport attaches the transport after construction, for wiring where
// the transport itself needs the agent (LocalNetwork).
func (a *Agent) SetTransport(t Transport) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.transport = t
}

// Include registers every handler of p. Two protocols may not claim the
// same message kind.
func (a *Agent) Include(p *Protocol) error {
	if p == nil {
		return fmt.Errorf("%w: nil protocol", contractx.ErrValidation)
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, kind := range p.Kinds() {
		if existing, ok := a.routes[kind]; ok {
			return fmt.Errorf("%w: %s already handled by %s", contractx.ErrValidation, kind, existing.protocol.name)
		}
	}
	for _, kind := range p.Kinds() {
		h, _ := p.wrapped(kind)
		a.routes[kind] = route{protocol: p, handler: h}
	}
	a.protocols = append(a.protocols, p)
	a.logger.Info().Str("protocol", p.name).Str("version", p.version).Str("digest", p.Digest()).Msg("protocol included")
	return nil
}

func (a *Agent) Protocols() []*Protocol {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*Protocol(nil), a.protocols...)
}

// Run drains the inbox until ctx is done.
func (a *Agent) Run(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return ErrAgentRunning
	}
	a.running = true
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
	}()

	a.logger.Info().Msg("agent started")
	for {
		select {
		case <-ctx.Done():
			a.logger.Info().Msg("agent stopped")
			return nil
		case in := <-a.inbox:
			a.dispatch(ctx, in)
		}
	}
}

// Receive accepts an envelope from a transport. Replies to a pending Call
// resolve it directly; everything else is queued for the handler goroutine.
func (a *Agent) Receive(ctx context.Context, env *Envelope) error {
	in, ok, err := a.accept(env)
	if err != nil || !ok {
		return err
	}
	select {
	case a.inbox <- in:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReceiveSync is Receive for a caller waiting on the transport response.
// respond gets the first message the handler sends back to the sender, or
// nil when the handler finished without one. The handler's later sends to
// other addresses are held until respond returns.
func (a *Agent) ReceiveSync(ctx context.Context, env *Envelope, respond func(protocol.Message) error) error {
	in, ok, err := a.accept(env)
	if err != nil {
		return err
	}
	if !ok {
		return respond(nil)
	}
	capture := newReplyCapture()
	defer capture.release()
	in.capture = capture
	in.done = make(chan struct{})

	select {
	case a.inbox <- in:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-capture.ready:
	case <-in.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return respond(capture.get())
}

// accept validates env and settles pending calls. ok is false when the
// envelope was consumed without needing a handler.
func (a *Agent) accept(env *Envelope) (inbound, bool, error) {
	if env == nil {
		return inbound{}, false, fmt.Errorf("%w: nil envelope", contractx.ErrMalformedPayload)
	}
	if env.Target != a.address {
		return inbound{}, false, fmt.Errorf("%w: %s is not %s", contractx.ErrUnknownPeer, env.Target, a.address)
	}
	logger := a.logger.With().Str("sender", env.Sender.String()).Str("session", env.Session).Logger()

	if env.Expired(a.now()) {
		logger.Debug().Msg("dropping expired envelope")
		return inbound{}, false, nil
	}

	msg, err := env.Open()
	if err != nil {
		logger.Warn().Err(err).Msg("dropping undecodable envelope")
		return inbound{}, false, err
	}

	if a.settle(env.Session, env.Sender, msg) {
		return inbound{}, false, nil
	}
	if a.isClosedSession(env.Session) {
		logger.Debug().Str("kind", string(msg.Kind())).Msg("dropping late reply")
		return inbound{}, false, nil
	}
	return inbound{env: env, msg: msg}, true, nil
}

func (a *Agent) dispatch(ctx context.Context, in inbound) {
	if in.done != nil {
		defer close(in.done)
	}

	kind := in.msg.Kind()
	a.mu.Lock()
	r, ok := a.routes[kind]
	a.mu.Unlock()

	logger := a.logger.With().
		Str("sender", in.env.Sender.String()).
		Str("session", in.env.Session).
		Str("kind", string(kind)).
		Logger()
	if !ok {
		logger.Warn().Msg("no handler for message kind")
		return
	}
	logger = logger.With().Str("protocol", r.protocol.name).Logger()

	hc := &Context{
		agent:    a,
		sender:   in.env.Sender,
		session:  in.env.Session,
		protocol: r.protocol.name,
		logger:   logger,
		capture:  in.capture,
	}

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error().Interface("panic", rec).Msg("handler panicked")
		}
	}()
	if err := r.handler(ctx, hc, in.msg); err != nil {
		logger.Error().Err(err).Msg("handler failed")
	}
}

// Send delivers msg under a fresh session without waiting for a reply.
func (a *Agent) Send(ctx context.Context, to protocol.Address, msg protocol.Message) error {
	return a.deliver(ctx, to, uuid.NewString(), msg)
}

// SendSession delivers msg under an existing session.
func (a *Agent) SendSession(ctx context.Context, to protocol.Address, session string, msg protocol.Message) error {
	return a.deliver(ctx, to, session, msg)
}

func (a *Agent) deliver(ctx context.Context, to protocol.Address, session string, msg protocol.Message) error {
	t := a.currentTransport()
	if t == nil {
		return fmt.Errorf("%w: agent %s has no transport", contractx.ErrUnknownPeer, a.name)
	}
	env, err := Seal(a.address, to, session, msg, a.encoding)
	if err != nil {
		return err
	}
	return t.Deliver(ctx, env)
}

func (a *Agent) currentTransport() Transport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.transport
}
