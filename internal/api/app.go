package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/go-mystery/internal/config"
	"github.com/npezzotti/go-mystery/internal/database"
	"github.com/npezzotti/go-mystery/internal/game"
	"github.com/npezzotti/go-mystery/internal/server"
	"github.com/npezzotti/go-mystery/internal/session"
	"go.uber.org/zap"
)

// App is the HTTP and websocket shell over the game service.
type App struct {
	log            *zap.Logger
	store          database.Store
	game           *game.Service
	gs             *server.GameServer
	sessions       *session.Manager
	srv            *http.Server
	allowedOrigins []string
}

func NewApp(mux *http.ServeMux, logger *zap.Logger, gs *server.GameServer, svc *game.Service, store database.Store, cfg *config.Config) *App {
	s := &App{
		log:            logger.Named("api"),
		store:          store,
		game:           svc,
		gs:             gs,
		sessions:       session.NewManager(cfg.SigningKey),
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)

	mux.HandleFunc("POST /api/session", s.createSession)
	mux.Handle("GET /api/session", s.sessionMiddleware(s.getSession))
	mux.Handle("DELETE /api/session", s.sessionMiddleware(s.restartSession))
	mux.Handle("POST /api/session/leave", s.sessionMiddleware(s.leaveRoom))

	mux.Handle("POST /api/rooms", s.sessionMiddleware(s.createRoom))
	mux.Handle("GET /api/rooms/{code}", s.sessionMiddleware(s.getRoom))
	mux.Handle("POST /api/rooms/{code}/join", s.sessionMiddleware(s.joinRoom))
	mux.Handle("POST /api/rooms/{code}/start", s.sessionMiddleware(s.startGame))
	mux.Handle("POST /api/rooms/{code}/advance", s.sessionMiddleware(s.advancePhase))

	mux.Handle("GET /api/rooms/{code}/investigation", s.sessionMiddleware(s.getInvestigation))
	mux.Handle("POST /api/rooms/{code}/investigation/search", s.sessionMiddleware(s.search))
	mux.Handle("POST /api/rooms/{code}/investigation/finish", s.sessionMiddleware(s.finishInvestigation))

	mux.Handle("GET /api/rooms/{code}/votes", s.sessionMiddleware(s.getVotingStatus))
	mux.Handle("POST /api/rooms/{code}/votes", s.sessionMiddleware(s.submitVote))
	mux.Handle("DELETE /api/rooms/{code}/votes", s.sessionMiddleware(s.retryVote))
	mux.Handle("POST /api/rooms/{code}/votes/proceed", s.sessionMiddleware(s.proceedToResult))
	mux.Handle("GET /api/rooms/{code}/result", s.sessionMiddleware(s.getResult))

	mux.Handle("GET /api/rooms/{code}/chat", s.sessionMiddleware(s.getChat))
	mux.Handle("GET /ws", s.sessionMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	s.srv = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s
}

// Handler returns the fully wrapped handler.
func (s *App) Handler() http.Handler {
	return s.srv.Handler
}

func (s *App) Start() error {
	s.log.Info("starting server", zap.String("addr", s.srv.Addr))
	return s.srv.ListenAndServe()
}

func (s *App) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
