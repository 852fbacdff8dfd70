package collect

import (
	"context"
	"crypto/tls"
	"net"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadtrace/internal/model"
)

// Confidence for names extracted from a served certificate. The CN is
// the primary identity; SANs are weaker (shared certs list many).
const (
	tlsCNConfidence  = 0.85
	tlsSANConfidence = 0.75
)

// TLSCert connects to the visitor IP on 443 and reads the served
// certificate's CN and SANs. Validation is disabled on purpose: the
// peer's identity is exactly what is being investigated.
type TLSCert struct {
	port    string
	timeout time.Duration
}

// TLSCertOption configures the collector.
type TLSCertOption func(*TLSCert)

// WithTLSPort overrides the probed port (used in tests).
func WithTLSPort(port string) TLSCertOption {
	return func(c *TLSCert) {
		c.port = port
	}
}

// NewTLSCert creates the collector. Zero timeout means 3 seconds.
func NewTLSCert(timeout time.Duration, opts ...TLSCertOption) *TLSCert {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	c := &TLSCert{port: "443", timeout: timeout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *TLSCert) Name() string { return "tls_cert" }

// Collect implements Collector. Connection errors resolve to "no
// evidence"; TLS probing against arbitrary hosts is inherently
// best-effort.
func (c *TLSCert) Collect(ctx context.Context, target Target) ([]model.DomainSignal, error) {
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: c.timeout},
		Config: &tls.Config{
			InsecureSkipVerify: true, //nolint:gosec // peer identity is the question
		},
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := dialer.DialContext(dialCtx, "tcp", net.JoinHostPort(target.IP, c.port))
	if err != nil {
		return nil, eris.Wrapf(err, "tls_cert: dial %s", target.IP)
	}
	defer conn.Close() //nolint:errcheck

	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		return nil, eris.New("tls_cert: not a TLS connection")
	}

	certs := tlsConn.ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return nil, nil
	}
	leaf := certs[0]

	var signals []model.DomainSignal
	seen := make(map[string]bool)

	add := func(name string, conf float64, reason string) {
		domain := stripWildcard(name)
		if domain == "" {
			return
		}
		sig, ok := model.NewSignal(domain, string(model.SourceTLSCert), conf, reason)
		if !ok || seen[sig.Domain] {
			return
		}
		seen[sig.Domain] = true
		signals = append(signals, sig)
	}

	add(leaf.Subject.CommonName, tlsCNConfidence, "certificate common name")
	for _, san := range leaf.DNSNames {
		add(san, tlsSANConfidence, "certificate subject alternative name")
	}

	return signals, nil
}

// stripWildcard drops a leading "*." label and rejects names that are
// not hostname-like.
func stripWildcard(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "*.")
	if !strings.Contains(name, ".") {
		return ""
	}
	return name
}
