package http3

import (
	"context"
	"crypto/tls"

	"github.com/hnakamur/h3quic/internal/httplog"
	"github.com/hnakamur/h3quic/transport"
)

// versionALPN is the ALPN token this implementation offers/accepts for
// the one QUIC version in scope here.
const versionALPN = "h3"

// Credential selects how a Configuration authenticates its TLS
// handshake. The sum-type shape (distinct constructors
// instead of a single struct with overlapping fields) mirrors msh3's
// MSH3_CREDENTIAL_CONFIG variants, adapted to Go idiom: NoCredential for
// a client verifying the peer normally, CertificateFileCredential/
// CertificateFileProtectedCredential for server-side file-backed certs,
// and NativeContextCredential as the escape hatch for anything this
// module can't portably construct itself, including a test's
// self-signed *tls.Config (see DESIGN.md for the PKCS12/OS-store
// variants dropped here).
type Credential interface {
	tlsConfig(perspective transport.Perspective) (*tls.Config, error)
}

type noCredential struct{}

func (noCredential) tlsConfig(transport.Perspective) (*tls.Config, error) {
	return &tls.Config{}, nil
}

// NoCredential performs ordinary certificate verification against the
// system trust store (client-only).
func NoCredential() Credential { return noCredential{} }

type nativeContextCredential struct{ cfg *tls.Config }

func (n nativeContextCredential) tlsConfig(transport.Perspective) (*tls.Config, error) {
	return n.cfg.Clone(), nil
}

// NativeContextCredential wraps a caller-constructed *tls.Config
// directly, for certificate sources this module has no portable way to
// build (PKCS12 bundles, an OS certificate store, HSM-backed keys).
func NativeContextCredential(cfg *tls.Config) Credential {
	return nativeContextCredential{cfg: cfg}
}

type certificateFileCredential struct {
	certFile, keyFile string
}

func (c certificateFileCredential) tlsConfig(transport.Perspective) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(c.certFile, c.keyFile)
	if err != nil {
		return nil, err
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
}

// CertificateFileCredential loads a server certificate and private key
// from PEM files on disk.
func CertificateFileCredential(certFile, keyFile string) Credential {
	return certificateFileCredential{certFile: certFile, keyFile: keyFile}
}

type certificateFileProtectedCredential struct {
	certFile, keyFile, password string
}

func (c certificateFileProtectedCredential) tlsConfig(transport.Perspective) (*tls.Config, error) {
	// Go's crypto/tls has no built-in encrypted-PEM-key loader; callers
	// needing this combination should decrypt the key themselves and
	// use CertificateFileCredential or NativeContextCredential instead.
	// Kept as a named constructor so the credential variant exists in
	// the API even though construction here always fails loudly rather
	// than silently ignoring the password.
	return nil, errUnsupportedProtectedKey
}

// CertificateFileProtectedCredential names the password-protected
// private key file variant; see its doc comment for why construction
// currently always errors.
func CertificateFileProtectedCredential(certFile, keyFile, password string) Credential {
	return certificateFileProtectedCredential{certFile: certFile, keyFile: keyFile, password: password}
}

var errUnsupportedProtectedKey = &ProtocolError{Code: errorInternalError, Reason: "password-protected key files are not supported; decrypt the key and use CertificateFileCredential"}

// Configuration binds a Credential to the SETTINGS this endpoint
// advertises and the logger used for diagnostics, applied per accepted
// or dialed connection.
type Configuration struct {
	Credential Credential
	Settings   Settings
	Logger     *httplog.Logger
}

func (cfg *Configuration) settingsOrDefault() Settings {
	if cfg == nil || (cfg.Settings.QPACKMaxTableCapacity == 0 && cfg.Settings.MaxFieldSectionSize == 0) {
		return DefaultSettings()
	}
	return cfg.Settings
}

func (cfg *Configuration) loggerOrDefault() *httplog.Logger {
	if cfg == nil || cfg.Logger == nil {
		return httplog.Nop()
	}
	return cfg.Logger
}

// API is the library's entry point: an explicit handle returned by
// Open, rather than relying on process-global state the way a
// MsQuic-style singleton would.
type API struct{}

// Open constructs a library handle. There is deliberately no global
// initialization: every resource it creates is reachable from the
// returned value.
func Open() (*API, error) { return &API{}, nil }

// Dial establishes a client connection to addr (host:port) and drives
// the HTTP/3 connection startup sequence (local SETTINGS + three
// unidirectional streams) before returning.
func (a *API) Dial(ctx context.Context, addr string, cfg *Configuration, events ConnectionEvents) (*Connection, error) {
	tlsConf, err := cfg.Credential.tlsConfig(transport.PerspectiveClient)
	if err != nil {
		return nil, err
	}
	tlsConf.NextProtos = []string{versionALPN}

	tc, err := transport.Dial(ctx, "udp", addr, tlsConf, &transport.Config{})
	if err != nil {
		return nil, err
	}

	c, err := newConn(tc, cfg.settingsOrDefault(), events, cfg.loggerOrDefault())
	if err != nil {
		tc.CloseWithError(uint64(errorInternalError), err.Error())
		return nil, err
	}

	select {
	case <-tc.HandshakeComplete().Done():
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if events.OnConnected != nil {
		events.OnConnected(&Connection{c: c})
	}
	return &Connection{c: c}, nil
}
