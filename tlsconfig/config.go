/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

// Package tlsconfig is the opaque TLS stream adapter: it turns a
// validated Config into a *tls.Config the acceptor can wrap a raw
// net.Listener with, without the engine ever inspecting certificate
// material itself.
package tlsconfig

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	libval "github.com/go-playground/validator/v10"

	"github.com/sabouaram/rio/errs"
)

// CertPair is one certificate/key pair, either inline PEM or file paths.
type CertPair struct {
	CertFile string `mapstructure:"certFile" json:"certFile" yaml:"certFile" toml:"certFile"`
	KeyFile  string `mapstructure:"keyFile" json:"keyFile" yaml:"keyFile" toml:"keyFile"`
	CertPEM  []byte `mapstructure:"-" json:"-" yaml:"-" toml:"-"`
	KeyPEM   []byte `mapstructure:"-" json:"-" yaml:"-" toml:"-"`
}

// Config is the declarative certificate/cipher/version surface a host
// fills in, trimmed to the knobs this library actually exposes.
type Config struct {
	CipherList     []uint16           `mapstructure:"cipherList" json:"cipherList" yaml:"cipherList" toml:"cipherList"`
	CurveList      []tls.CurveID      `mapstructure:"curveList" json:"curveList" yaml:"curveList" toml:"curveList"`
	RootCAFiles    []string           `mapstructure:"rootCA" json:"rootCA" yaml:"rootCA" toml:"rootCA"`
	ClientCAFiles  []string           `mapstructure:"clientCA" json:"clientCA" yaml:"clientCA" toml:"clientCA"`
	Certs          []CertPair         `mapstructure:"certs" json:"certs" yaml:"certs" toml:"certs" validate:"dive"`
	VersionMin     uint16             `mapstructure:"versionMin" json:"versionMin" yaml:"versionMin" toml:"versionMin"`
	VersionMax     uint16             `mapstructure:"versionMax" json:"versionMax" yaml:"versionMax" toml:"versionMax"`
	ClientAuth     tls.ClientAuthType `mapstructure:"authClient" json:"authClient" yaml:"authClient" toml:"authClient"`
	InheritDefault bool               `mapstructure:"inheritDefault" json:"inheritDefault" yaml:"inheritDefault" toml:"inheritDefault"`
}

// TLSConfig is the adapter surface the engine's acceptor depends on. It
// never sees a Config directly, only this interface, so that host
// applications can plug in their own certificate sourcing.
type TLSConfig interface {
	TlsConfig(serverName string) *tls.Config
	LenCertificatePair() int
}

type tlsCfg struct {
	base *tls.Config
}

func (t *tlsCfg) TlsConfig(serverName string) *tls.Config {
	c := t.base.Clone()
	c.ServerName = serverName
	return c
}

func (t *tlsCfg) LenCertificatePair() int {
	return len(t.base.Certificates)
}

// Default is the TLS 1.2–1.3 baseline New merges a Config onto when
// that Config sets InheritDefault.
var Default = &Config{
	VersionMin: uint16(tls.VersionTLS12),
	VersionMax: uint16(tls.VersionTLS13),
}

// Validate runs struct-tag validation over the config, translating
// validator field errors into a registered errs.Error.
func (c *Config) Validate() errs.Error {
	if er := libval.New().Struct(c); er != nil {
		out := errs.New(ErrorValidatorError, "")
		if e, ok := er.(*libval.InvalidValidationError); ok {
			out.AddParent(e)
		} else if ve, ok := er.(libval.ValidationErrors); ok {
			for _, fe := range ve {
				out.AddParent(fmt.Errorf("config field %q fails constraint %q", fe.StructNamespace(), fe.ActualTag()))
			}
		}
		if out.HasParent() {
			return out
		}
	}
	return nil
}

// New builds a TLSConfig, merging onto Default when InheritDefault is
// set.
func (c *Config) New() (TLSConfig, error) {
	if c.InheritDefault {
		base, err := Default.NewFrom(nil)
		if err != nil {
			return nil, err
		}
		return c.NewFrom(base)
	}
	return c.NewFrom(nil)
}

// NewFrom merges c onto an existing TLSConfig's base (or a blank one),
// fields set in c taking priority, and materializes a *tls.Config.
func (c *Config) NewFrom(base TLSConfig) (TLSConfig, error) {
	t := &tls.Config{
		MinVersion: tls.VersionTLS12,
		MaxVersion: tls.VersionTLS13,
	}

	if b, ok := base.(*tlsCfg); ok && b != nil {
		t = b.base.Clone()
	}

	if c.VersionMin != 0 {
		t.MinVersion = c.VersionMin
	}
	if c.VersionMax != 0 {
		t.MaxVersion = c.VersionMax
	}
	if c.ClientAuth != tls.NoClientCert {
		t.ClientAuth = c.ClientAuth
	}
	if len(c.CipherList) > 0 {
		t.CipherSuites = append(t.CipherSuites, c.CipherList...)
	}
	if len(c.CurveList) > 0 {
		t.CurvePreferences = append(t.CurvePreferences, c.CurveList...)
	}

	for _, pair := range c.Certs {
		var (
			crt tls.Certificate
			err error
		)
		if len(pair.CertPEM) > 0 && len(pair.KeyPEM) > 0 {
			crt, err = tls.X509KeyPair(pair.CertPEM, pair.KeyPEM)
		} else {
			crt, err = tls.LoadX509KeyPair(pair.CertFile, pair.KeyFile)
		}
		if err != nil {
			return nil, errs.New(ErrorCertLoad, err.Error())
		}
		t.Certificates = append(t.Certificates, crt)
	}

	if len(c.RootCAFiles) > 0 {
		pool, err := loadCertPool(t.RootCAs, c.RootCAFiles)
		if err != nil {
			return nil, errs.New(ErrorCertLoad, err.Error())
		}
		t.RootCAs = pool
	}

	if len(c.ClientCAFiles) > 0 {
		pool, err := loadCertPool(t.ClientCAs, c.ClientCAFiles)
		if err != nil {
			return nil, errs.New(ErrorCertLoad, err.Error())
		}
		t.ClientCAs = pool
		if c.ClientAuth == tls.NoClientCert {
			t.ClientAuth = tls.RequireAndVerifyClientCert
		}
	}

	return &tlsCfg{base: t}, nil
}

// loadCertPool reads every PEM file into pool, cloning base (or
// starting a fresh pool) rather than mutating a pool the base config
// might still be using.
func loadCertPool(base *x509.CertPool, files []string) (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	if base != nil {
		pool = base.Clone()
	}
	for _, f := range files {
		pem, err := os.ReadFile(f)
		if err != nil {
			return nil, err
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %q", f)
		}
	}
	return pool, nil
}
