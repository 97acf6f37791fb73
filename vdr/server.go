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

package vdr

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/webplus-id/core/node"
	"github.com/webplus-id/core/sdk/apibase"
	"github.com/webplus-id/core/sdk/httpsecure"
	"github.com/webplus-id/core/services/notification"
	"github.com/webplus-id/core/storage"
)

// Config names the network identity this VDR serves documents under (the
// host[:port] every hosted DID's id must carry) and the gateways to notify
// of accepted writes.
type Config struct {
	Host               string
	Port               int
	AllowedHTTPOrigins []string
	GatewayEndpoints   []string
	TLS                node.TLSConfig
}

// Server is the VDR's HTTP front end: gin routing and process lifecycle
// over a Registry.
type Server struct {
	registry   *Registry
	router     *gin.Engine
	httpServer *http.Server
	port       int
	tls        node.TLSConfig
}

// NewServer wires a Server over store, following the same
// gin-plus-middleware shape the rest of the stack's HTTP services use.
func NewServer(cfg Config, store storage.DIDBackend, ns notification.Service) (*Server, error) {
	vdgs := make([]*httpsecure.Client, 0, len(cfg.GatewayEndpoints))
	for _, endpoint := range cfg.GatewayEndpoints {
		client, err := httpsecure.NewHTTPClient(endpoint, "webplus-vdr/1", 10*time.Second, nil)
		if err != nil {
			return nil, err
		}
		vdgs = append(vdgs, client)
	}

	s := &Server{
		registry: NewRegistry(store, ns, vdgs),
		port:     cfg.Port,
		tls:      cfg.TLS,
	}

	r := gin.New()
	_ = r.SetTrustedProxies(nil)
	r.Use(apibase.SetRequestLogger())
	r.Use(gin.Recovery())
	r.Use(cors.New(*node.DefaultCORSConfig(cfg.AllowedHTTPOrigins)))

	r.GET("/*path", s.handleGet)
	r.POST("/*path", s.handleCreateRoot)
	r.PUT("/*path", s.handleAppend)

	s.router = r
	return s, nil
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
		log.Info().Str("addr", addr).Msg("starting VDR HTTPS server")
		return s.httpServer.ListenAndServeTLS(certPath, keyPath)
	}

	log.Info().Str("addr", addr).Msg("starting VDR HTTP server")
	return s.httpServer.ListenAndServe()
}

func (s *Server) Close() error {
	if err := s.registry.Close(); err != nil {
		return err
	}
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}
