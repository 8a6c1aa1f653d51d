// Copyright 2025 Google LLC
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

package conduit

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"

	"github.com/dreamware/distfs/internal/distfserrors"
)

// TLSMode selects how strictly the conduit enforces transport-layer
// security on a connection.
type TLSMode int

const (
	TLSRequired TLSMode = iota
	TLSTestOnly
	TLSDisabled
)

// TLSMaterial is the raw PEM-encoded key material a caller supplies for
// a TLS-protected conduit connection.
type TLSMaterial struct {
	CertPEM []byte
	KeyPEM  []byte
	CAPEM   []byte
}

var pemHeader = []byte("-----BEGIN")

// ValidateTLSMaterial checks that all three PEM fields are present and
// that CertPEM looks like an actual certificate.
func ValidateTLSMaterial(m TLSMaterial) error {
	if len(m.CertPEM) == 0 {
		return distfserrors.NewInvalidArgument("cert_pem is empty")
	}
	if len(m.KeyPEM) == 0 {
		return distfserrors.NewInvalidArgument("key_pem is empty")
	}
	if len(m.CAPEM) == 0 {
		return distfserrors.NewInvalidArgument("ca_pem is empty")
	}
	if !bytes.HasPrefix(m.CertPEM, pemHeader) {
		return distfserrors.NewInvalidArgument("cert_pem does not start with -----BEGIN")
	}
	return nil
}

// TLSValidator enforces a TLSMode against an optional TLSMaterial.
type TLSValidator struct {
	mode TLSMode
}

// NewTLSValidator constructs a TLSValidator in mode.
func NewTLSValidator(mode TLSMode) *TLSValidator {
	return &TLSValidator{mode: mode}
}

// Mode reports the validator's enforcement mode.
func (v *TLSValidator) Mode() TLSMode { return v.mode }

// IsPlaintextAllowed reports whether a connection may skip TLS under
// this mode.
func (v *TLSValidator) IsPlaintextAllowed() bool {
	return v.mode == TLSTestOnly || v.mode == TLSDisabled
}

// ValidateConfig checks m (nil means plaintext) against the validator's
// mode. Required rejects a nil m and validates present material;
// TestOnly and Disabled accept anything.
func (v *TLSValidator) ValidateConfig(m *TLSMaterial) error {
	switch v.mode {
	case TLSRequired:
		if m == nil {
			return distfserrors.NewInvalidArgument("plaintext not allowed: TLS is required")
		}
		return ValidateTLSMaterial(*m)
	default:
		return nil
	}
}

// BuildServerConfig constructs a *tls.Config for Required-mode conduit
// listeners from validated material. Callers in TestOnly/Disabled mode
// never call this.
func BuildServerConfig(m TLSMaterial) (*tls.Config, error) {
	if err := ValidateTLSMaterial(m); err != nil {
		return nil, err
	}
	cert, err := tls.X509KeyPair(m.CertPEM, m.KeyPEM)
	if err != nil {
		return nil, distfserrors.NewInvalidArgument("failed to parse cert/key pair: " + err.Error())
	}
	caPool := x509.NewCertPool()
	if !caPool.AppendCertsFromPEM(m.CAPEM) {
		return nil, distfserrors.NewInvalidArgument("failed to parse ca_pem")
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientCAs:    caPool,
		MinVersion:   tls.VersionTLS13,
		ClientAuth:   tls.RequireAndVerifyClientCert,
	}, nil
}
