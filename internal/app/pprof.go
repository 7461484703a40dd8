package app

import (
	"context"
	"fmt"
	"log/slog"
	pprofhttp "net/http/pprof"
	"sync"

	"github.com/gin-gonic/gin"

	"hostmon/internal/api"
	"hostmon/internal/config"
)

// pprofRouter mounts the runtime profiling handlers under /debug/pprof.
// Params: none.
// Returns: gin engine serving pprof index, named profiles and trace endpoints.
func pprofRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	debug := router.Group("/debug/pprof")
	debug.GET("/", gin.WrapF(pprofhttp.Index))
	debug.GET("/cmdline", gin.WrapF(pprofhttp.Cmdline))
	debug.GET("/profile", gin.WrapF(pprofhttp.Profile))
	debug.GET("/symbol", gin.WrapF(pprofhttp.Symbol))
	debug.POST("/symbol", gin.WrapF(pprofhttp.Symbol))
	debug.GET("/trace", gin.WrapF(pprofhttp.Trace))
	// heap, goroutine, allocs and the other named profiles resolve through Index.
	debug.GET("/:profile", gin.WrapF(pprofhttp.Index))
	return router
}

// startPprofServer starts the optional profiling endpoint on its own listener.
// Params: ctx controls lifecycle; cfg provides enabled/listen options; logger reports runtime events.
// Returns: stop function (idempotent, waits for shutdown) and bind error.
func startPprofServer(ctx context.Context, cfg config.PprofConfig, logger *slog.Logger) (func(), error) {
	if !cfg.Enabled {
		return func() {}, nil
	}

	pprofLogger := logger.With(slog.String("component", "pprof"))
	server, err := api.NewServer(cfg.Listen, pprofRouter(), pprofLogger)
	if err != nil {
		return nil, fmt.Errorf("pprof: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := server.Run(runCtx); err != nil {
			pprofLogger.Error("pprof server failed", slog.String("addr", cfg.Listen), slog.String("error", err.Error()))
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}, nil
}
