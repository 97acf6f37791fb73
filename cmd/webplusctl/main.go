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

// Command webplusctl is a CLI wallet and resolver client for did:webplus:
// it creates and updates DIDs through a configured VDR, and resolves DIDs
// through the full, thin or raw strategy.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/webplus-id/core/cmd"
	"github.com/webplus-id/core/diduri"
	"github.com/webplus-id/core/microledger"
	"github.com/webplus-id/core/model"
	"github.com/webplus-id/core/resolver"
	"github.com/webplus-id/core/sdk/httpsecure"
	"github.com/webplus-id/core/storage"
	_ "github.com/webplus-id/core/storage/boltstore"
	"github.com/webplus-id/core/utils/jsonw"
	"github.com/webplus-id/core/vjson"
	"github.com/webplus-id/core/wallet"
)

// readCredential returns val unchanged if already set (by flag or
// environment variable); otherwise it prompts on stderr, masking the input
// if mask is true.
func readCredential(val, prompt string, mask bool) string {
	if val != "" {
		return val
	}

	fmt.Fprint(os.Stderr, prompt)

	if mask {
		byteVal, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			panic("error when reading password")
		}
		val = string(byteVal)
	} else {
		reader := bufio.NewReader(os.Stdin)
		val, _ = reader.ReadString('\n')
	}

	fmt.Fprintln(os.Stderr)

	return strings.TrimSpace(val)
}

// openEphemeralReplica opens a throwaway bolt-backed store for a single
// full-mode resolve: the CLI has no long-lived cache of its own, so each
// invocation backfills from scratch.
func openEphemeralReplica() (storage.DIDBackend, error) {
	dir, err := os.MkdirTemp("", "webplusctl-resolve-*")
	if err != nil {
		return nil, err
	}
	return storage.CreateDIDBackend(&storage.DIDBackendConfig{
		Type:   "bolt",
		Params: storage.Parameters{"file": dir + "/replica.bolt"},
	})
}

func main() {
	app := cli.NewApp()
	app.Name = "webplusctl"
	app.Usage = "wallet and resolver CLI for did:webplus"

	app.Flags = []cli.Flag{
		&cli.BoolFlag{Name: "debug", Usage: "enable debug logging"},
		&cli.StringFlag{Name: "wallet-dir", Usage: "wallet store directory (default: ~/.webplus/wallet/<vdr with ':' and '/' replaced by '_'>/default/wallet.bolt)"},
		&cli.StringFlag{Name: "vdr", Usage: "VDR base URL", Required: true},
		&cli.StringFlag{Name: "passphrase", Usage: "wallet master passphrase (prompted for if omitted)", EnvVars: []string{"WEBPLUS_PASSPHRASE"}},
	}

	app.Before = func(c *cli.Context) error {
		if c.Bool("debug") {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		} else {
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
		}
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Stamp})
		return nil
	}

	app.Commands = []*cli.Command{
		{
			Name:      "create-did",
			Usage:     "generate keys and register a new root DID document with the VDR",
			ArgsUsage: "<host> [path-segment...]",
			Action:    createDID,
		},
		{
			Name:      "rotate-update-key",
			Usage:     "publish a new version replacing the update key",
			ArgsUsage: "<did>",
			Action:    rotateUpdateKey,
		},
		{
			Name:      "deactivate",
			Usage:     "publish a final version that disallows further updates",
			ArgsUsage: "<did>",
			Action:    deactivate,
		},
		{
			Name:   "list",
			Usage:  "list DIDs this wallet controls",
			Action: listDIDs,
		},
		{
			Name:      "resolve",
			Usage:     "resolve a did_query",
			ArgsUsage: "<did-query>",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "mode", Value: "full", Usage: "full|thin|raw"},
				&cli.StringFlag{Name: "gateway", Usage: "gateway base URL, required for mode=thin"},
			},
			Action: resolveDID,
		},
		{
			Name:      "verify",
			Usage:     "verify the self-hash of a DID document or VJSON value read from a file, without contacting a VDR; proofs are not checked",
			ArgsUsage: "<file>",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "kind", Value: "diddoc", Usage: "diddoc|vjson"},
				&cli.StringFlag{Name: "schema", Usage: "path to the value's schema (vjson only; omit when the file verified is itself the schema)"},
			},
			Action: verifyDocument,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}

func openWallet(c *cli.Context) (*wallet.Wallet, error) {
	dir := c.String("wallet-dir")
	if dir == "" {
		var err error
		dir, err = cmd.GetWalletPath(c.String("vdr"), "default")
		if err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	passphrase := readCredential(c.String("passphrase"), "wallet master passphrase: ", true)
	masterKey := model.NewAESKey(model.Hash("webplusctl wallet master key", []byte(passphrase)))
	return wallet.Open(dir, c.String("vdr"), masterKey, diduri.NewSchemeOverride())
}

func createDID(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("usage: create-did <host> [path-segment...]", 1)
	}
	host := c.Args().Get(0)
	pathSegments := c.Args().Slice()[1:]

	w, err := openWallet(c)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer func() { _ = w.Close() }()

	did, err := w.CreateDID(c.Context, host, pathSegments, microledger.AlgEdDSA)
	if err != nil {
		return cli.Exit(err, 1)
	}
	fmt.Println(did)
	return nil
}

func rotateUpdateKey(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: rotate-update-key <did>", 1)
	}
	did := c.Args().Get(0)

	w, err := openWallet(c)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer func() { _ = w.Close() }()

	newKey, err := microledger.GenerateKeyPair(microledger.AlgEdDSA)
	if err != nil {
		return cli.Exit(err, 1)
	}
	newMultibase, err := newKey.PublicKeyMultibase()
	if err != nil {
		return cli.Exit(err, 1)
	}

	fragment := "update-key-" + strings.ReplaceAll(newMultibase[:12], ":", "")
	err = w.UpdateDID(c.Context, did, func(next *microledger.DIDDocument) {
		vmID := next.ID + "#" + fragment
		next.PublicKeyMaterial.VerificationMethod = append(next.PublicKeyMaterial.VerificationMethod,
			microledger.VerificationMethod{
				ID: vmID, Type: "Ed25519VerificationKey2020", Controller: next.ID, PublicKeyMultibase: newMultibase,
			})
		next.UpdateRules = microledger.SingleKeyUpdateRule(vmID)
	})
	if err != nil {
		return cli.Exit(err, 1)
	}

	return nil
}

func deactivate(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: deactivate <did>", 1)
	}
	w, err := openWallet(c)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer func() { _ = w.Close() }()

	return w.DeactivateDID(c.Context, c.Args().Get(0))
}

func listDIDs(c *cli.Context) error {
	w, err := openWallet(c)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer func() { _ = w.Close() }()

	dids, err := w.GetControlledDIDs()
	if err != nil {
		return cli.Exit(err, 1)
	}
	for _, did := range dids {
		fmt.Println(did)
	}
	return nil
}

// verifyDocument implements the verification-only entry point: given a
// document already on disk (no VDR contacted), check the invariants that
// don't require a live chain — self-hash recomputation for a DID document,
// or schema-relative self-hash slots for a VJSON value.
func verifyDocument(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: verify [--kind diddoc|vjson] <file>", 1)
	}
	raw, err := os.ReadFile(c.Args().Get(0))
	if err != nil {
		return cli.Exit(err, 1)
	}

	switch c.String("kind") {
	case "diddoc":
		var doc microledger.DIDDocument
		if err := jsonw.Unmarshal(raw, &doc); err != nil {
			return cli.Exit(err, 1)
		}
		if err := microledger.VerifySelfHash(&doc); err != nil {
			return cli.Exit(fmt.Sprintf("self-hash verification failed: %v", err), 1)
		}
		fmt.Println("OK: self-hash verified")
		return nil
	case "vjson":
		var value map[string]any
		if err := jsonw.Unmarshal(raw, &value); err != nil {
			return cli.Exit(err, 1)
		}
		schemaURL, _ := value["$schema"].(string)
		if schemaURL == "" {
			return cli.Exit("value has no $schema", 1)
		}

		schemaPath := c.String("schema")
		schemaRaw := raw
		isSelfSchema := schemaPath == ""
		if !isSelfSchema {
			var err error
			schemaRaw, err = os.ReadFile(schemaPath)
			if err != nil {
				return cli.Exit(err, 1)
			}
		}
		schema, err := vjson.ParseSchema(schemaRaw, schemaURL)
		if err != nil {
			return cli.Exit(err, 1)
		}

		if err := vjson.Verify(schema, value, isSelfSchema); err != nil {
			return cli.Exit(fmt.Sprintf("self-hash verification failed: %v", err), 1)
		}
		fmt.Println("OK: self-hash verified")
		return nil
	default:
		return cli.Exit("kind must be one of diddoc, vjson", 1)
	}
}

func resolveDID(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: resolve <did-query>", 1)
	}

	var r resolver.Resolver
	switch c.String("mode") {
	case "full":
		store, err := openEphemeralReplica()
		if err != nil {
			return cli.Exit(err, 1)
		}
		r = resolver.NewFullResolver(store, diduri.NewSchemeOverride(), 8)
	case "raw":
		r = resolver.NewRawResolver(diduri.NewSchemeOverride())
	case "thin":
		gw := c.String("gateway")
		if gw == "" {
			return cli.Exit("mode=thin requires -gateway", 1)
		}
		client, err := httpsecure.NewHTTPClient(gw, "webplusctl/1", 30*time.Second, nil)
		if err != nil {
			return cli.Exit(err, 1)
		}
		r = resolver.NewThinResolver(client)
	default:
		return cli.Exit("mode must be one of full, thin, raw", 1)
	}

	doc, md, err := r.ResolveDIDDocument(c.Context, c.Args().Get(0), microledger.RequestedMetadata{
		Created: true, MostRecentUpdate: true, MostRecentVersionID: true, Deactivated: true,
	})
	if err != nil {
		return cli.Exit(err, 1)
	}

	out := struct {
		Document *microledger.DIDDocument `json:"didDocument"`
		Metadata microledger.Metadata     `json:"didDocumentMetadata"`
	}{doc, md}
	raw, err := jsonw.MarshalIndent(out, "", "  ")
	if err != nil {
		return cli.Exit(err, 1)
	}
	fmt.Println(string(raw))
	return nil
}
