// Package tls owns the TLS engine configuration and the per-connection
// engine sessions used by the socket layer. The engine is crypto/tls,
// adapted to the stepped want-read/want-write protocol a non-blocking
// socket needs.
//
// License: MIT

package tls

import (
	ctls "crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/rmgmachado/rmlib/internal/sock"
	"github.com/rmgmachado/rmlib/status"
)

// Mode fixes a Context as client-side or server-side at construction.
type Mode int

const (
	// ModeClient configures sessions to initiate handshakes.
	ModeClient Mode = iota
	// ModeServer configures sessions to answer handshakes.
	ModeServer
)

// Maximum certificate chain depth accepted once SetVerify is enabled.
const maxVerifyDepth = 4

var log = zap.NewNop()

// SetLogger installs a package logger. The default discards everything.
func SetLogger(l *zap.Logger) {
	if l != nil {
		log = l
	}
}

// Context owns one engine configuration for its lifetime. The mode
// cannot change after construction. A Context is read-only once built
// and may be shared by any number of sockets to create independent
// per-connection sessions.
//
// Callers must check Status().OK() before use: a failed load leaves the
// Context failed with its partially built configuration released.
type Context struct {
	mode   Mode
	cfg    *ctls.Config
	st     status.Status
	verify bool
}

// NewContext allocates an engine configuration with no certificate
// loaded. Client contexts do not verify the peer until SetVerify.
func NewContext(mode Mode) *Context {
	c := &Context{mode: mode}
	c.cfg = c.baseConfig()
	return c
}

// NewContextWithPEM loads certificate and private key from a single
// PEM file.
func NewContextWithPEM(mode Mode, pemFile string) *Context {
	return NewContextWithCert(mode, pemFile, pemFile)
}

// NewContextWithCert allocates an engine configuration and loads a
// certificate and private key from PEM files. Any load failure leaves
// the Context failed; the configuration is released eagerly.
func NewContextWithCert(mode Mode, certFile, keyFile string) *Context {
	c := &Context{mode: mode}
	c.cfg = c.baseConfig()
	cert, err := ctls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		c.fail(fmt.Sprintf("load certificate: %v", err))
		return c
	}
	c.cfg.Certificates = []ctls.Certificate{cert}
	return c
}

// SetVerify enables peer certificate verification against the trust
// anchors in pemFile, with a maximum chain depth of 4. A failure to
// load the trust anchors is fatal and fails the Context.
func (c *Context) SetVerify(pemFile string) status.Status {
	if c.cfg == nil {
		c.st = status.Fatal("TLS context not allocated")
		return c.st
	}
	pem, err := os.ReadFile(pemFile)
	if err != nil {
		c.fail(fmt.Sprintf("load trust anchors: %v", err))
		return c.st
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		c.fail("load trust anchors: no certificates found in " + pemFile)
		return c.st
	}
	c.verify = true
	if c.mode == ModeClient {
		// Chain verification only, matching the engine contract: host
		// name checks are not part of peer verification here, so the
		// built-in verifier is bypassed in favor of an explicit one.
		c.cfg.InsecureSkipVerify = true
		c.cfg.VerifyPeerCertificate = chainVerifier(pool)
	} else {
		c.cfg.ClientCAs = pool
		c.cfg.ClientAuth = ctls.RequireAndVerifyClientCert
		c.cfg.VerifyPeerCertificate = verifyDepth
	}
	c.st = status.OK()
	return c.st
}

// Status reports the construction outcome of the Context.
func (c *Context) Status() status.Status {
	return c.st
}

// Mode returns the fixed client/server mode.
func (c *Context) Mode() Mode {
	return c.mode
}

// NewSession creates an independent per-connection engine session bound
// to an OS descriptor. Safe for concurrent use by multiple sockets.
func (c *Context) NewSession(h sock.Handle) (*Session, status.Status) {
	if c.cfg == nil || !c.st.OK() {
		return nil, status.Fatal("TLS context unusable: " + c.st.Reason())
	}
	return newSession(c, h), status.OK()
}

func (c *Context) baseConfig() *ctls.Config {
	cfg := &ctls.Config{MinVersion: ctls.VersionTLS12}
	if c.mode == ModeClient {
		// No peer verification until SetVerify opts in.
		cfg.InsecureSkipVerify = true
	}
	return cfg
}

func (c *Context) fail(reason string) {
	c.st = status.Fatal(reason)
	c.cfg = nil
	log.Warn("tls context failed", zap.String("reason", reason))
}

func verifyDepth(_ [][]byte, verifiedChains [][]*x509.Certificate) error {
	if len(verifiedChains) == 0 {
		return nil
	}
	for _, chain := range verifiedChains {
		if len(chain) <= maxVerifyDepth+1 {
			return nil
		}
	}
	return fmt.Errorf("certificate chain exceeds maximum depth %d", maxVerifyDepth)
}

// chainVerifier validates the peer's chain against the loaded trust
// anchors, enforcing the maximum depth but no host name matching.
func chainVerifier(roots *x509.CertPool) func([][]byte, [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return fmt.Errorf("peer presented no certificate")
		}
		leaf, err := x509.ParseCertificate(rawCerts[0])
		if err != nil {
			return fmt.Errorf("parse peer certificate: %w", err)
		}
		inter := x509.NewCertPool()
		for _, raw := range rawCerts[1:] {
			if cert, perr := x509.ParseCertificate(raw); perr == nil {
				inter.AddCert(cert)
			}
		}
		chains, err := leaf.Verify(x509.VerifyOptions{
			Roots:         roots,
			Intermediates: inter,
			KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
		})
		if err != nil {
			return err
		}
		return verifyDepth(nil, chains)
	}
}
