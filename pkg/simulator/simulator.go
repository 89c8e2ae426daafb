// Package simulator implements a dummy NetworkGym peer that answers every policy with
// random per-user measurements. It stands in for the remote simulator in local runs
// and tests.
package simulator

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/boristopalov/networkgym/pkg/northbound"
)

const (
	defaultIntervalMs = 100
	defaultStartMs    = 1000
	defaultNumUsers   = 4
)

// Handler answers one client frame with zero or more reply frames.
type Handler interface {
	Handle(identity string, frame []byte) [][]byte
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(identity string, frame []byte) [][]byte

func (f HandlerFunc) Handle(identity string, frame []byte) [][]byte {
	return f(identity, frame)
}

// Sim holds one dummy simulation per client identity.
type Sim struct {
	mu       sync.Mutex
	sessions map[string]*session
	rng      *rand.Rand
	logger   *slog.Logger

	maxSessions  int
	splitReports bool
}

type Option func(*Sim)

// WithMaxSessions refuses new identities with "no-available-worker" once n are active.
func WithMaxSessions(n int) Option {
	return func(s *Sim) {
		s.maxSessions = n
	}
}

// WithSplitReports sends each timestep as two reports, the first flagged "more".
func WithSplitReports() Option {
	return func(s *Sim) {
		s.splitReports = true
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Sim) {
		s.logger = l
	}
}

// WithRand sets the generator that seeds unseeded sessions.
func WithRand(r *rand.Rand) Option {
	return func(s *Sim) {
		s.rng = r
	}
}

// New creates a simulator with no active sessions.
func New(opts ...Option) *Sim {
	s := &Sim{
		sessions: make(map[string]*session),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return s
}

// Active reports whether identity has a running simulation.
func (s *Sim) Active(identity string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[identity]
	return ok
}

// LastPolicy returns the action list of the last env-action identity sent.
func (s *Sim) LastPolicy(identity string) []northbound.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[identity]; ok {
		return sess.lastActions
	}
	return nil
}

// Timestep returns the current timestep of identity's simulation, or -1.
func (s *Sim) Timestep(identity string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[identity]; ok {
		return sess.timestep
	}
	return -1
}

// End drops the simulation of identity.
func (s *Sim) End(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, identity)
}

// Handle decodes a client envelope and returns the encoded replies.
func (s *Sim) Handle(identity string, frame []byte) [][]byte {
	msg, err := northbound.DecodeClientMessage(frame)
	if err != nil {
		return s.fail(identity, fmt.Sprintf("unknown message: %v", err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case msg.Start != nil:
		return s.start(identity, *msg.Start)
	default:
		return s.act(identity, *msg.Policy)
	}
}

func (s *Sim) start(identity string, req northbound.StartRequest) [][]byte {
	if _, ok := s.sessions[identity]; !ok && s.maxSessions > 0 && len(s.sessions) >= s.maxSessions {
		s.logger.Warn("no available worker", "client", identity, "active", len(s.sessions))
		frame, err := northbound.EncodeNoAvailableWorker()
		if err != nil {
			return nil
		}
		return [][]byte{frame}
	}
	sess, err := newSession(req, s.rng.Uint64())
	if err != nil {
		return s.fail(identity, err.Error())
	}
	s.sessions[identity] = sess
	s.logger.Info("simulation started", "client", identity, "env", req.Env, "users", sess.numUsers, "seeded", req.Seed != nil)
	return s.reports(sess.measure(req.Seed != nil))
}

func (s *Sim) act(identity string, p northbound.PolicyMessage) [][]byte {
	sess, ok := s.sessions[identity]
	if !ok {
		return s.fail(identity, "no simulation for client, send env-start first")
	}
	if p.Timestep != sess.timestep+1 {
		return s.fail(identity, fmt.Sprintf("expected action for timestep %d, got %d", sess.timestep+1, p.Timestep))
	}
	if p.Seed != nil {
		sess.reseed(*p.Seed)
	}
	sess.timestep++
	sess.lastActions = p.Actions
	return s.reports(sess.measure(p.Seed != nil))
}

func (s *Sim) reports(r northbound.MeasurementReport) [][]byte {
	parts := []northbound.MeasurementReport{r}
	if s.splitReports && len(r.Records) > 1 {
		half := len(r.Records) / 2
		first, second := r, r
		first.Records, first.More = r.Records[:half], true
		second.Records = r.Records[half:]
		parts = []northbound.MeasurementReport{first, second}
	}
	out := make([][]byte, 0, len(parts))
	for _, p := range parts {
		frame, err := northbound.EncodeReport(p)
		if err != nil {
			s.logger.Error("encode report", "error", err)
			return nil
		}
		out = append(out, frame)
	}
	return out
}

func (s *Sim) fail(identity, msg string) [][]byte {
	s.logger.Warn("simulation error", "client", identity, "error", msg)
	frame, err := northbound.EncodeError(msg)
	if err != nil {
		return nil
	}
	return [][]byte{frame}
}
