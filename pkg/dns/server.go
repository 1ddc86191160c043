package dns

import (
	"context"
	"fmt"
	"sync"

	"github.com/miekg/dns"

	"github.com/cuemby/ridgeline/pkg/log"
)

// DefaultListenAddr is the address the cluster DNS server listens on.
const DefaultListenAddr = "127.0.0.11:53"

// Server is ridgeline's cluster-local DNS server.
type Server struct {
	resolver   *Resolver
	dnsServer  *dns.Server
	listenAddr string
	upstream   []string

	mu      sync.RWMutex
	running bool
}

// Config holds DNS server configuration.
type Config struct {
	ListenAddr string
	Domain     string
	Upstream   []string
}

// NewServer creates a Server resolving names against source.
func NewServer(source Snapshotter, cfg *Config) *Server {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if cfg.Domain == "" {
		cfg.Domain = DefaultDomain
	}

	return &Server{
		resolver:   NewResolver(source, cfg.Domain),
		listenAddr: cfg.ListenAddr,
		upstream:   cfg.Upstream,
	}
}

// Start starts serving UDP DNS queries. It returns once the server has
// bound its listening socket; Stop or ctx cancellation ends it.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("dns: server already running")
	}
	s.running = true
	s.mu.Unlock()

	mux := dns.NewServeMux()
	mux.HandleFunc(".", s.handleQuery)

	started := make(chan struct{})
	s.dnsServer = &dns.Server{Addr: s.listenAddr, Net: "udp", Handler: mux,
		NotifyStartedFunc: func() { close(started) }}

	errCh := make(chan error, 1)
	go func() {
		if err := s.dnsServer.ListenAndServe(); err != nil {
			errCh <- err
		}
	}()

	go func() {
		<-ctx.Done()
		_ = s.Stop()
	}()

	select {
	case err := <-errCh:
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return err
	case <-started:
		log.WithComponent("dns").Info().Str("address", s.listenAddr).Msg("dns server listening")
		return nil
	}
}

// Stop shuts the server down. Safe to call more than once.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false
	if s.dnsServer != nil {
		return s.dnsServer.Shutdown()
	}
	return nil
}

func (s *Server) handleQuery(w dns.ResponseWriter, req *dns.Msg) {
	msg := &dns.Msg{}
	msg.SetReply(req)
	msg.Authoritative = true

	for _, q := range req.Question {
		if q.Qtype != dns.TypeA {
			s.forward(w, req)
			return
		}

		answers, err := s.resolver.Resolve(q.Name)
		if err != nil {
			log.WithComponent("dns").Debug().Err(err).Str("query", q.Name).Msg("unresolvable, forwarding upstream")
			s.forward(w, req)
			return
		}
		msg.Answer = append(msg.Answer, answers...)
	}

	if err := w.WriteMsg(msg); err != nil {
		log.WithComponent("dns").Error().Err(err).Msg("failed to write dns response")
	}
}

func (s *Server) forward(w dns.ResponseWriter, req *dns.Msg) {
	client := &dns.Client{Net: "udp"}
	for _, upstream := range s.upstream {
		resp, _, err := client.Exchange(req, upstream)
		if err != nil {
			continue
		}
		if err := w.WriteMsg(resp); err != nil {
			log.WithComponent("dns").Error().Err(err).Msg("failed to write forwarded dns response")
		}
		return
	}

	msg := &dns.Msg{}
	msg.SetReply(req)
	msg.Rcode = dns.RcodeServerFailure
	_ = w.WriteMsg(msg)
}

// IsRunning reports whether the server is currently listening.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
