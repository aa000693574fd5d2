package bus

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	contractx "github.com/tanpawarit/trendgeo/agent/contract"
	"github.com/tanpawarit/trendgeo/agent/protocol"
)

type pendingCall struct {
	target protocol.Address
	reply  chan protocol.Message
}

// Call sends msg to `to` and waits for the first reply in the same session.
// It never retries: a missing reply within timeout yields ErrTimeout and the
// pending entry is removed, so a late reply is dropped.
func (a *Agent) Call(ctx context.Context, to protocol.Address, msg protocol.Message, timeout time.Duration) (protocol.Message, error) {
	if timeout <= 0 {
		timeout = a.callTimeout
	}
	t := a.currentTransport()
	if t == nil {
		return nil, fmt.Errorf("%w: agent %s has no transport", contractx.ErrUnknownPeer, a.name)
	}

	session := uuid.NewString()
	env, err := Seal(a.address, to, session, msg, a.encoding)
	if err != nil {
		return nil, err
	}
	expires := a.now().Add(timeout)
	env.Expires = &expires

	pc := &pendingCall{target: to, reply: make(chan protocol.Message, 1)}
	a.register(session, pc)
	defer a.unregister(session)

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger := a.logger.With().Str("target", to.String()).Str("session", session).Str("kind", string(msg.Kind())).Logger()
	logger.Debug().Msg("call started")

	raw, err := t.DeliverSync(callCtx, env)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %s after %s", contractx.ErrTimeout, to, timeout)
		}
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) > 0 {
		reply, err := DecodeReply(raw)
		if err != nil {
			logger.Warn().Err(err).Msg("undecodable synchronous reply")
		} else {
			a.settle(session, to, reply)
		}
	}

	select {
	case reply := <-pc.reply:
		logger.Debug().Str("reply", string(reply.Kind())).Msg("call completed")
		return reply, nil
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Debug().Dur("timeout", timeout).Msg("call timed out")
		return nil, fmt.Errorf("%w: %s after %s", contractx.ErrTimeout, to, timeout)
	}
}

func (a *Agent) register(session string, pc *pendingCall) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending[session] = pc
}

func (a *Agent) unregister(session string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.pending, session)

	now := a.now()
	a.closed[session] = now
	for s, at := range a.closed {
		if now.Sub(at) > closedSessionTTL {
			delete(a.closed, s)
		}
	}
}

// settle hands msg to the Call waiting on session, if the sender is the
// address that call targeted.
func (a *Agent) settle(session string, sender protocol.Address, msg protocol.Message) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	pc, ok := a.pending[session]
	if !ok || pc.target != sender {
		return false
	}
	select {
	case pc.reply <- msg:
	default:
		a.logger.Debug().Str("session", session).Msg("extra reply for pending call dropped")
	}
	return true
}

func (a *Agent) isClosedSession(session string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.closed[session]
	return ok
}

// PendingCalls reports the number of calls awaiting a reply.
func (a *Agent) PendingCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}
