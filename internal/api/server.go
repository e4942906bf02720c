// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Fuelink

// Package api exposes the fleet manager over HTTP for point-of-sale systems
// and forecourt dashboards.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fuelink/forecourt/internal/config"
	"github.com/fuelink/forecourt/internal/fleet"
)

// Server is the HTTP management API.
type Server struct {
	engine *gin.Engine
	srv    *http.Server
	fleet  *fleet.Manager
	log    *logrus.Entry
}

// NewServer wires the routes onto a fleet manager.
func NewServer(mgr *fleet.Manager, cfg config.HTTPConfig) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	log := logrus.WithField("component", "api")
	engine.Use(gin.Recovery(), requestID(), requestLogger(log), cors())

	s := &Server{
		engine: engine,
		fleet:  mgr,
		log:    log,
	}
	s.routes()

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	s.srv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      engine,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}
	return s
}

func (s *Server) routes() {
	h := &pumpAPI{fleet: s.fleet, log: s.log}

	s.engine.GET("/health", h.health)
	s.engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	s.engine.GET("/pumps", h.listPumps)
	s.engine.POST("/pumps", h.addPump)
	s.engine.GET("/pumps/:id", h.getPump)
	s.engine.DELETE("/pumps/:id", h.removePump)
	s.engine.GET("/pumps/:id/status", h.pumpStatus)
	s.engine.GET("/pumps/:id/transaction", h.pumpTransaction)
	s.engine.GET("/pumps/:id/totals", h.pumpTotals)
	s.engine.POST("/pumps/:id/connect", h.connectPump)
	s.engine.POST("/pumps/:id/disconnect", h.disconnectPump)
	s.engine.POST("/pumps/:id/authorize", h.authorizePump)
	s.engine.POST("/pumps/:id/stop", h.stopPump)

	// Fleet-wide operations live beside /pumps, not under it; gin does not
	// allow a static segment alongside the :id parameter.
	s.engine.GET("/statuses", h.allStatuses)
	s.engine.POST("/connect-all", h.connectAll)
	s.engine.POST("/disconnect-all", h.disconnectAll)
	s.engine.POST("/all-stop", h.allStop)
	s.engine.POST("/discover", h.discover)
}

// Handler exposes the routed engine, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	s.log.WithField("addr", s.srv.Addr).Info("management API listening")
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("management API shutting down")
	return s.srv.Shutdown(ctx)
}
