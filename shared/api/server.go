// shared/api/server.go
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type BaseServer struct {
	Router *mux.Router
	Server *http.Server
	Logger logrus.FieldLogger
}

func NewBaseServer(addr string, logger logrus.FieldLogger) *BaseServer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	router := mux.NewRouter()

	// Apply common middleware
	router.Use(RequestIDMiddleware)
	router.Use(NewLoggingMiddleware(logger))
	router.Use(CORSMiddleware)

	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second, // must cover a full upstream forward, timeout included
		IdleTimeout:  120 * time.Second,
	}

	return &BaseServer{
		Router: router,
		Server: server,
		Logger: logger,
	}
}

func (bs *BaseServer) Start() error {
	bs.Logger.Infof("Starting HTTP server on %s...", bs.Server.Addr)
	// ListenAndServe returns http.ErrServerClosed on graceful shutdown
	if err := bs.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

func (bs *BaseServer) Shutdown(ctx context.Context) error {
	bs.Logger.Info("Shutting down HTTP server...")
	return bs.Server.Shutdown(ctx)
}
