package bus

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tanpawarit/trendgeo/agent/protocol"
	"github.com/tanpawarit/trendgeo/agent/storage"
)

// Context is what a handler sees of the inbound envelope and its agent.
type Context struct {
	agent    *Agent
	sender   protocol.Address
	session  string
	protocol string
	logger   zerolog.Logger
	capture  *replyCapture
}

// replyCapture holds the first reply to the sender of a synchronous request
// so it can travel back in the transport response. Once a reply is captured,
// sends to other addresses wait until that response has been written.
type replyCapture struct {
	mu       sync.Mutex
	reply    protocol.Message
	taken    bool
	ready    chan struct{}
	released chan struct{}
	once     sync.Once
}

func newReplyCapture() *replyCapture {
	return &replyCapture{
		ready:    make(chan struct{}),
		released: make(chan struct{}),
	}
}

func (r *replyCapture) offer(msg protocol.Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.taken {
		return false
	}
	r.reply = msg
	r.taken = true
	close(r.ready)
	return true
}

func (r *replyCapture) get() protocol.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reply
}

func (r *replyCapture) release() {
	r.once.Do(func() { close(r.released) })
}

// wait blocks until the captured reply is on the wire. It returns at once
// when nothing was captured.
func (r *replyCapture) wait(ctx context.Context) error {
	r.mu.Lock()
	taken := r.taken
	r.mu.Unlock()
	if !taken {
		return nil
	}
	select {
	case <-r.released:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Context) Sender() protocol.Address  { return c.sender }
func (c *Context) Session() string           { return c.session }
func (c *Context) Protocol() string          { return c.protocol }
func (c *Context) Address() protocol.Address { return c.agent.address }
func (c *Context) Storage() storage.Store    { return c.agent.storage }
func (c *Context) Logger() *zerolog.Logger   { return &c.logger }
func (c *Context) Now() time.Time            { return c.agent.now() }

// Send delivers msg to the given address under the current session.
func (c *Context) Send(ctx context.Context, to protocol.Address, msg protocol.Message) error {
	if c.capture != nil {
		if to == c.sender && c.capture.offer(msg) {
			return nil
		}
		if err := c.capture.wait(ctx); err != nil {
			return err
		}
	}
	return c.agent.deliver(ctx, to, c.session, msg)
}

func (c *Context) Call(ctx context.Context, to protocol.Address, msg protocol.Message, timeout time.Duration) (protocol.Message, error) {
	return c.agent.Call(ctx, to, msg, timeout)
}
