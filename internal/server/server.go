// Package server exposes build submission and listing over HTTP.
package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/buildyard/internal/dispatch"
	"github.com/zulandar/buildyard/internal/logging"
	"github.com/zulandar/buildyard/internal/models"
	"gorm.io/gorm"
)

// maxPatchBytes bounds the multipart body held in memory.
const maxPatchBytes = 32 << 20

// Submitter accepts build submissions.
type Submitter interface {
	Submit(ctx context.Context, req dispatch.Request) ([]models.Build, error)
}

// StartOpts holds configuration for the API server.
type StartOpts struct {
	DB        *gorm.DB
	Submitter Submitter
	Port      int
	Out       io.Writer
	Log       *slog.Logger
}

// Start launches the API server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	router, err := NewRouter(opts)
	if err != nil {
		return err
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	addr := fmt.Sprintf(":%d", opts.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Build API listening on http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(opts StartOpts) (*gin.Engine, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("server: db is required")
	}
	if opts.Submitter == nil {
		return nil, fmt.Errorf("server: submitter is required")
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.MaxMultipartMemory = maxPatchBytes

	h := &handlers{db: opts.DB, submitter: opts.Submitter, log: logging.OrDefault(opts.Log)}
	registerRoutes(router, h)
	return router, nil
}
