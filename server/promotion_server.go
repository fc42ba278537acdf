package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"sigs.k8s.io/controller-runtime/pkg/healthz"

	"github.com/weaveworks/apptrust-promoter/pkg/ratelimiter"
)

// PromotionServer exposes an endpoint advancing an application version by one stage per request.
type PromotionServer struct {
	log               logr.Logger
	factory           AdvancerFactory
	addr              string
	listener          net.Listener
	promHandler       http.Handler
	promEndpointName  string
	hmacKey           []byte
	rateLimit         int
	rateLimitInterval time.Duration
}

type Opt func(s *PromotionServer) error

var (
	ErrFactoryCantBeNil      = fmt.Errorf("advancer factory can't be nil")
	DefaultListenAddr        = "127.0.0.1:8080"
	DefaultPromotionEndpoint = "/promotion"
	DefaultRateLimitCount    = ratelimiter.DefaultLimit
	DefaultRateLimitInterval = ratelimiter.DefaultDuration
)

func NewPromotionServer(factory AdvancerFactory, opts ...Opt) (*PromotionServer, error) {
	if factory == nil {
		return nil, ErrFactoryCantBeNil
	}

	s := &PromotionServer{
		factory: factory,
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	setDefaults(s)

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("failed creating listener: %w", err)
	}
	s.listener = listener

	return s, nil
}

func setDefaults(s *PromotionServer) {
	if s.log.GetSink() == nil {
		s.log = stdr.New(log.New(os.Stdout, "", log.Lshortfile))
	}

	if s.addr == "" {
		s.addr = DefaultListenAddr
	}
	if s.rateLimit == 0 {
		s.rateLimit = DefaultRateLimitCount
	}
	if s.rateLimitInterval == 0 {
		s.rateLimitInterval = DefaultRateLimitInterval
	}

	if s.promHandler == nil {
		s.promHandler = NewDefaultPromotionHandler(
			s.log.WithName("handler"),
			s.factory,
			s.hmacKey,
		)
	}
	if s.promEndpointName == "" {
		s.promEndpointName = DefaultPromotionEndpoint
	}
}

// Addr returns the address the server listens on.
func (s *PromotionServer) Addr() net.Addr {
	return s.listener.Addr()
}

func getRealIP(r *http.Request) string {
	address := r.Header.Get("X-Real-IP")
	if address == "" {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			address = strings.TrimSpace(strings.Split(fwd, ",")[0])
		}
	}
	if address == "" {
		address = r.RemoteAddr
	}

	if host, _, err := net.SplitHostPort(address); err == nil {
		return host
	}
	return address
}

func (s *PromotionServer) rateLimitMiddleware(limiter *ratelimiter.Limiter, h http.Handler) http.Handler {
	log := s.log.WithValues("kind", "promotion webhook rate limiter")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := getRealIP(r)
		if limit, err := limiter.Hit(ip); err != nil {
			log.Error(err, "rate limit hit", "ip", ip)
			w.Header().Add("Retry-After", limit.ResetAt(limiter.Duration).UTC().Format(http.TimeFormat))
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}

		h.ServeHTTP(w, r)
	})
}

// Start serves requests until ctx is done.
func (s *PromotionServer) Start(ctx context.Context) error {
	pathPrefix := s.promEndpointName + "/"

	limiter := ratelimiter.New(
		ratelimiter.WithLimit(s.rateLimit),
		ratelimiter.WithDuration(s.rateLimitInterval),
	)
	defer limiter.Shutdown()

	mux := http.NewServeMux()
	mux.Handle(pathPrefix,
		s.rateLimitMiddleware(
			limiter,
			http.StripPrefix(s.promEndpointName, s.promHandler),
		),
	)
	mux.Handle("/healthz", healthz.CheckHandler{Checker: healthz.Ping})

	srv := http.Server{
		Addr:              s.listener.Addr().String(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log := s.log.WithValues("kind", "promotion webhook", "path", pathPrefix, "addr", s.listener.Addr())
		log.Info("Starting server")
		if err := srv.Serve(s.listener); err != nil {
			if errors.Is(err, http.ErrServerClosed) {
				return
			}
			log.Error(err, "failed serving")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
