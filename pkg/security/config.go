// Package security defines the TLS and certificate configuration shared by
// every listener and client the host runs: the bridge gateway, the metrics
// endpoint, and outbound connections to module backends.
package security

// Config is the host-wide security section of the configuration file.
type Config struct {
	TLS TLSConfig `json:"tls,omitempty"`
}

// TLSConfig splits transport security into the server side (what the host
// serves) and the client side (what the host dials).
type TLSConfig struct {
	Server ServerTLSConfig `json:"server,omitempty"`
	Client ClientTLSConfig `json:"client,omitempty"`
}

// ServerTLSConfig configures TLS for the WebSocket gateway and any other
// HTTP listener. Mode selects manual certificate files or ACME issuance.
type ServerTLSConfig struct {
	Enabled    bool   `json:"enabled"`
	Mode       string `json:"mode,omitempty"` // "manual" (default) or "acme"
	CertFile   string `json:"cert_file,omitempty"`
	KeyFile    string `json:"key_file,omitempty"`
	MinVersion string `json:"min_version,omitempty"` // "1.2" or "1.3"

	// Used when Mode is "acme".
	ACME ACMEConfig `json:"acme,omitempty"`

	MTLS ServerMTLSConfig `json:"mtls,omitempty"`
}

// ClientTLSConfig configures TLS for connections the host initiates. The
// system CA bundle is always trusted; CAFiles extends it rather than
// replacing it.
type ClientTLSConfig struct {
	CAFiles            []string `json:"ca_files,omitempty"`
	InsecureSkipVerify bool     `json:"insecure_skip_verify,omitempty"` // test environments only
	MinVersion         string   `json:"min_version,omitempty"`

	MTLS ClientMTLSConfig `json:"mtls,omitempty"`
}

// ServerMTLSConfig validates certificates presented by connecting clients.
type ServerMTLSConfig struct {
	Enabled           bool     `json:"enabled"`
	ClientCAFiles     []string `json:"client_ca_files,omitempty"`
	RequireClientCert bool     `json:"require_client_cert,omitempty"` // false leaves the client cert optional
	AllowedClientCNs  []string `json:"allowed_client_cns,omitempty"`  // empty allows any validated CN
}

// ClientMTLSConfig supplies the certificate the host presents when a peer
// demands mutual TLS.
type ClientMTLSConfig struct {
	Enabled  bool   `json:"enabled"`
	CertFile string `json:"cert_file,omitempty"`
	KeyFile  string `json:"key_file,omitempty"`
}

// ACMEConfig drives automated certificate issuance and renewal against an
// ACME directory such as a step-ca instance.
type ACMEConfig struct {
	Enabled       bool     `json:"enabled"`
	DirectoryURL  string   `json:"directory_url,omitempty"`
	Email         string   `json:"email,omitempty"`
	Domains       []string `json:"domains,omitempty"`
	ChallengeType string   `json:"challenge_type,omitempty"` // "http-01" or "tls-alpn-01"
	RenewBefore   string   `json:"renew_before,omitempty"`   // duration string, e.g. "8h"
	StoragePath   string   `json:"storage_path,omitempty"`
	CABundle      string   `json:"ca_bundle,omitempty"` // extra root for private ACME CAs
}
