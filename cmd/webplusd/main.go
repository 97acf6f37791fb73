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

// Command webplusd runs the VDR and/or VDG HTTP services described by a
// single YAML configuration file, either standalone or side by side in one
// process.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/webplus-id/core/cmd"
	"github.com/webplus-id/core/diduri"
	"github.com/webplus-id/core/node"
	"github.com/webplus-id/core/services/notification"
	"github.com/webplus-id/core/storage"
	_ "github.com/webplus-id/core/storage/boltstore"
	_ "github.com/webplus-id/core/storage/sqlstore"
	"github.com/webplus-id/core/utils"
	"github.com/webplus-id/core/vdg"
	"github.com/webplus-id/core/vdr"
)

const Version = "1.0.0"

func main() {
	app := cli.NewApp()
	app.Name = "webplusd"
	app.Usage = "did:webplus VDR/VDG server"
	app.Version = Version

	app.Flags = []cli.Flag{
		&cli.BoolFlag{Name: "debug", Usage: "if true, enable debug mode"},
		&cli.StringFlag{
			Name:  "config",
			Value: "config",
			Usage: "config name (will use $HOME/.webplus/{name}.yaml config file)",
		},
	}
	app.Before = func(c *cli.Context) error {
		if c.Bool("debug") {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		} else {
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
		}
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Stamp})
		return nil
	}

	app.Action = RunServer

	if err := app.Run(os.Args); err != nil {
		println(err.Error())
		os.Exit(1)
	}
}

func RunServer(c *cli.Context) error {
	configDir := cmd.GetConfigDir()
	configName := c.String("config")

	cfg := koanf.New(".")
	if err := cfg.Load(
		file.Provider(filepath.Join(configDir, fmt.Sprintf("%s.yaml", configName))),
		yaml.Parser(),
	); err != nil {
		return err
	}

	warden := utils.NewGracefulWarden(30)

	scheme := diduri.NewSchemeOverride()
	for host, s := range cfg.StringMap("schemeOverrides") {
		scheme.Set(host, s)
	}

	var ns notification.Service
	if cfg.Exists("vdr") && cfg.Bool("vdr.enabled") {
		ns = notification.NewLocalNotificationService(64)
		warden.CloseOnShutdown(ns)

		srv, err := startVDR(cfg, ns, configDir)
		if err != nil {
			return err
		}
		warden.CloseOnShutdown(srv)
		go func() {
			if err := srv.Run(); err != nil {
				log.Error().Err(err).Msg("VDR server stopped")
			}
		}()
	}

	if cfg.Exists("vdg") && cfg.Bool("vdg.enabled") {
		srv, err := startVDG(cfg, scheme, configDir)
		if err != nil {
			return err
		}
		warden.CloseOnShutdown(srv)
		go func() {
			if err := srv.Run(); err != nil {
				log.Error().Err(err).Msg("VDG server stopped")
			}
		}()
	}

	select {}
}

// tlsConfigFrom reads the "{section}.tls" config block into a
// node.TLSConfig. Relative cert directories are resolved against
// configDir, so a missing cert/key pair is generated alongside the
// daemon's own config file rather than the process's working directory.
func tlsConfigFrom(cfg *koanf.Koanf, section, configDir string) node.TLSConfig {
	key := section + ".tls"
	if !cfg.Exists(key) || !cfg.Bool(key+".enabled") {
		return node.TLSConfig{}
	}
	certDir := cfg.String(key + ".certDir")
	if certDir == "" {
		certDir = configDir
	} else if !filepath.IsAbs(certDir) {
		certDir = filepath.Join(configDir, certDir)
	}
	return node.TLSConfig{
		Enabled: true,
		CertDir: certDir,
		Hosts:   cfg.Strings(key + ".hosts"),
	}
}

func startVDR(cfg *koanf.Koanf, ns notification.Service, configDir string) (*vdr.Server, error) {
	var backendCfg storage.DIDBackendConfig
	if err := cfg.Unmarshal("vdr.backend", &backendCfg); err != nil {
		return nil, err
	}
	store, err := storage.CreateDIDBackend(&backendCfg)
	if err != nil {
		return nil, err
	}

	return vdr.NewServer(vdr.Config{
		Host:               cfg.String("vdr.host"),
		Port:               cfg.Int("vdr.port"),
		AllowedHTTPOrigins: cfg.Strings("vdr.allowedHttpOrigins"),
		GatewayEndpoints:   cfg.Strings("vdr.gatewayEndpoints"),
		TLS:                tlsConfigFrom(cfg, "vdr", configDir),
	}, store, ns)
}

func startVDG(cfg *koanf.Koanf, scheme *diduri.SchemeOverride, configDir string) (*vdg.Server, error) {
	var backendCfg storage.DIDBackendConfig
	if err := cfg.Unmarshal("vdg.backend", &backendCfg); err != nil {
		return nil, err
	}
	store, err := storage.CreateDIDBackend(&backendCfg)
	if err != nil {
		return nil, err
	}

	return vdg.NewServer(vdg.Config{
		Port:                      cfg.Int("vdg.port"),
		AllowedHTTPOrigins:        cfg.Strings("vdg.allowedHttpOrigins"),
		FetchConcurrency:          cfg.Int("vdg.fetchConcurrency"),
		RevalidateIntervalSeconds: uint64(cfg.Int64("vdg.revalidateIntervalSeconds")),
		TLS:                       tlsConfigFrom(cfg, "vdg", configDir),
	}, store, scheme)
}
