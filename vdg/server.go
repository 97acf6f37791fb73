// Copyright 2022 Piprate Limited
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package vdg

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/claudiu/gocron"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/webplus-id/core/diduri"
	"github.com/webplus-id/core/node"
	"github.com/webplus-id/core/sdk/apibase"
	"github.com/webplus-id/core/storage"
)

// Config names the gateway's network identity, how aggressively it
// back-fills missing predecessor versions from an origin VDR, and how
// often it proactively revalidates its entire cache (0 disables the
// sweep and leaves the cache to refresh only on read and on VDR
// notifications).
type Config struct {
	Port                      int
	AllowedHTTPOrigins        []string
	FetchConcurrency          int
	RevalidateIntervalSeconds uint64
	TLS                       node.TLSConfig
}

// Server is the VDG's HTTP front end: three routes
// ("/resolve", "/fetch/:did/did-documents.jsonl", "/update/:did"), relative
// to whatever base path a deployment mounts this service under, over a
// Gateway.
//
// A thin client's connection URL and a VDR's configured gateway endpoint
// are both expected to already carry any deployment-wide version prefix
// (e.g. ".../webplus/v1"): the routes registered here are always relative
// to that prefix, the same way the VDR's own routes are relative to the
// DID's host, not to a fixed mount point.
type Server struct {
	gateway    *Gateway
	router     *gin.Engine
	httpServer *http.Server
	scheduler  *gocron.Scheduler
	port       int
	tls        node.TLSConfig
}

func NewServer(cfg Config, store storage.DIDBackend, scheme *diduri.SchemeOverride) (*Server, error) {
	fetchCap := cfg.FetchConcurrency
	if fetchCap < 1 {
		fetchCap = 8
	}

	s := &Server{
		gateway: NewGateway(store, scheme, fetchCap),
		port:    cfg.Port,
		tls:     cfg.TLS,
	}

	r := gin.New()
	_ = r.SetTrustedProxies(nil)
	r.Use(apibase.SetRequestLogger())
	r.Use(gin.Recovery())
	r.Use(cors.New(*node.DefaultCORSConfig(cfg.AllowedHTTPOrigins)))

	r.GET("/resolve", s.handleResolve)
	r.GET("/fetch/:did/did-documents.jsonl", s.handleFetch)
	r.POST("/update/:did", s.handleUpdate)

	s.router = r

	if cfg.RevalidateIntervalSeconds > 0 {
		s.scheduler = gocron.NewScheduler()
		s.scheduler.Every(cfg.RevalidateIntervalSeconds).Seconds().Do(revalidateAll, s.gateway)
		s.scheduler.Start()
	}

	return s, nil
}

// revalidateAll re-resolves every DID the gateway has ever cached, as a
// backstop against a missed VDR update notification.
func revalidateAll(g *Gateway) {
	dids, err := g.ListCachedDIDs(context.Background())
	if err != nil {
		log.Warn().Err(err).Msg("cache revalidation sweep failed to list cached DIDs")
		return
	}
	for _, did := range dids {
		g.Refresh(did)
	}
}

func (s *Server) Run() error {
	addr := fmt.Sprintf(":%d", s.port)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 30 * time.Second,
	}

	if s.tls.Enabled {
		certPath, keyPath, err := node.EnsureServerCertificate(s.tls)
		if err != nil {
			return err
		}
		log.Info().Str("addr", addr).Msg("starting VDG HTTPS server")
		return s.httpServer.ListenAndServeTLS(certPath, keyPath)
	}

	log.Info().Str("addr", addr).Msg("starting VDG HTTP server")
	return s.httpServer.ListenAndServe()
}

func (s *Server) Close() error {
	if s.scheduler != nil {
		s.scheduler.Clear()
	}
	if err := s.gateway.Close(); err != nil {
		return err
	}
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}
