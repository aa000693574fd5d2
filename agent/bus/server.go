package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	contractx "github.com/tanpawarit/trendgeo/agent/contract"
	"github.com/tanpawarit/trendgeo/agent/protocol"
)

const (
	SignatureHeader = "Upstash-Signature"
	maxRequestBytes = 1 << 20
)

// SignatureVerifier checks the signature a relay attached to a request.
type SignatureVerifier interface {
	Verify(signature string, body []byte) error
}

// Server exposes one agent over HTTP.
type Server struct {
	agent    *Agent
	verifier SignatureVerifier
	router   *gin.Engine
}

type ServerOption func(*Server)

func WithSignatureVerifier(v SignatureVerifier) ServerOption {
	return func(s *Server) { s.verifier = v }
}

func NewServer(agent *Agent, opts ...ServerOption) (*Server, error) {
	if agent == nil {
		return nil, fmt.Errorf("%w: agent is required", contractx.ErrValidation)
	}
	s := &Server{agent: agent}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.POST(SubmitPath, s.handleSubmit)
	router.GET("/healthz", s.handleHealthz)
	s.router = router
	return s, nil
}

func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe blocks until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.agent.logger.Info().Int("port", port).Msg("agent endpoint listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("bus: serve: %w", err)
	}
	return nil
}

func (s *Server) handleSubmit(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRequestBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	if s.verifier != nil {
		if sig := c.GetHeader(SignatureHeader); sig != "" {
			if err := s.verifier.Verify(sig, body); err != nil {
				s.agent.logger.Warn().Err(err).Msg("rejecting request with bad signature")
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
				return
			}
		}
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid envelope"})
		return
	}

	ctx := c.Request.Context()
	if c.GetHeader(SyncHeader) != SyncHeaderValue {
		if err := s.agent.Receive(ctx, &env); err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusAccepted)
		return
	}

	err = s.agent.ReceiveSync(ctx, &env, func(reply protocol.Message) error {
		if reply == nil {
			c.Status(http.StatusNoContent)
			c.Writer.WriteHeaderNow()
			c.Writer.Flush()
			return nil
		}
		sealed, err := Seal(s.agent.address, env.Sender, env.Session, reply, s.agent.encoding)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(sealed)
		if err != nil {
			return fmt.Errorf("marshal reply envelope: %w", err)
		}
		// Content-Length ends the caller's read at the last byte.
		c.Header("Content-Length", strconv.Itoa(len(raw)))
		c.Data(http.StatusOK, "application/json", raw)
		c.Writer.Flush()
		return nil
	})
	if err != nil {
		if c.Writer.Written() {
			s.agent.logger.Warn().Err(err).Msg("sync submit failed after responding")
			return
		}
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
	}
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"agent":   s.agent.name,
		"address": s.agent.address,
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, contractx.ErrUnknownPeer):
		return http.StatusNotFound
	case errors.Is(err, contractx.ErrMalformedPayload), errors.Is(err, protocol.ErrUnknownKind):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
