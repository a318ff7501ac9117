package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/lcalzada-xor/fleetmap/internal/adapters/reporting"
	"github.com/lcalzada-xor/fleetmap/internal/adapters/web"
	"github.com/lcalzada-xor/fleetmap/internal/adapters/web/handlers"
	"github.com/lcalzada-xor/fleetmap/internal/adapters/web/middleware"
	"github.com/lcalzada-xor/fleetmap/internal/logger"
)

// Options tunes the transport.
type Options struct {
	// AllowedOrigins lists WebSocket origins besides the serving host. "*" allows any.
	AllowedOrigins []string
	// ProbeRateLimit is the number of manual probes a client may issue per minute.
	// Zero disables the limit.
	ProbeRateLimit int
	// TrustedProxies may name the operator through middleware.ActorHeader.
	TrustedProxies middleware.TrustedProxies
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	Addr      string
	Console   web.ConsoleService
	WSManager *web.WSManager

	MapHandler     *handlers.MapHandler
	ProbeHandler   *handlers.ProbeHandler
	SessionHandler *handlers.SessionHandler
	AuditHandler   *handlers.AuditHandler
	ReportHandler  *handlers.ReportHandler

	probeLimiter   *middleware.RateLimiter
	trustedProxies middleware.TrustedProxies
	log            zerolog.Logger
	srv            *http.Server
}

// NewServer creates a new web server.
func NewServer(addr string, console web.ConsoleService, pdfExporter *reporting.PDFExporter, opts Options) *Server {
	s := &Server{
		Addr:      addr,
		Console:   console,
		WSManager: web.NewWSManager(console, opts.AllowedOrigins),

		MapHandler:     handlers.NewMapHandler(console),
		ProbeHandler:   handlers.NewProbeHandler(console),
		SessionHandler: handlers.NewSessionHandler(console),
		AuditHandler:   handlers.NewAuditHandler(console),
		ReportHandler:  handlers.NewReportHandler(console, pdfExporter),

		trustedProxies: opts.TrustedProxies,
		log:            logger.WithComponent("web"),
	}
	if opts.ProbeRateLimit > 0 {
		s.probeLimiter = middleware.NewRateLimiter(opts.ProbeRateLimit, time.Minute)
	}
	return s
}

// Handler returns the instrumented router.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(SetupRoutes(s), "fleetmap-server")
}

// Run starts the broadcaster and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, lis)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	s.WSManager.Start(ctx)

	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("Web server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error().Err(err).Msg("Web server shutdown error")
		}
		if s.probeLimiter != nil {
			s.probeLimiter.Close()
		}
	}()

	s.log.Info().Str("addr", lis.Addr().String()).Msg("Web server listening")
	if err := s.srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
