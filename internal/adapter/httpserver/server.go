package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type Server struct {
	http *http.Server
}

func NewServer(port int, api *API, secret string, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestID())
	router.Use(requestLogger(logger))
	router.Use(authMiddleware(secret))
	api.RegisterRoutes(router)

	s := &http.Server{
		Addr:        fmt.Sprintf("0.0.0.0:%d", port),
		Handler:     router,
		ReadTimeout: 10 * time.Second,
		// A start can legitimately block for minutes while the instance
		// boots and the workload comes up, so responses get no write cap.
		WriteTimeout:      0,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return &Server{http: s}
}

func (s *Server) Run() error {
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
