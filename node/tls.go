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

package node

import (
	"os"
	"time"

	"github.com/webplus-id/core/utils/security"
)

// TLSConfig names the certificate and key a VDR/VDG HTTP server should
// serve over TLS. If either file is missing, a self-signed certificate is
// generated into CertDir on first run — convenient for local development,
// never appropriate in front of production traffic.
type TLSConfig struct {
	Enabled bool
	CertDir string
	Hosts   []string
}

// EnsureServerCertificate returns the cert and key paths TLSConfig names,
// generating a fresh self-signed pair under CertDir if either is absent.
func EnsureServerCertificate(cfg TLSConfig) (certPath, keyPath string, err error) {
	certPath = cfg.CertDir + "/cert.pem"
	keyPath = cfg.CertDir + "/key.pem"

	_, certErr := os.Stat(certPath)
	_, keyErr := os.Stat(keyPath)
	if certErr == nil && keyErr == nil {
		return certPath, keyPath, nil
	}

	if err := security.GenerateCertificate(0, cfg.Hosts, time.Time{}, 0, cfg.CertDir); err != nil {
		return "", "", err
	}
	return certPath, keyPath, nil
}
