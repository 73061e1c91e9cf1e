package security

import (
	"context"
	"crypto/tls"
	"math"
	"net"
	"net/url"
	"time"
)

// Certificate states reported by Check.
const (
	StatusValid       = "valid"
	StatusExpiring    = "expiring"
	StatusExpired     = "expired"
	StatusUnreachable = "unreachable"
)

// expiringDays is the window in which a still-valid certificate is flagged.
const expiringDays = 30

// CertStatus describes the leaf certificate presented by an endpoint.
type CertStatus struct {
	Endpoint string
	Status   string
	DaysLeft int
	Issuer   string
	NotAfter time.Time
	Err      error
}

// Check dials the TLS endpoint and returns a CertStatus describing the leaf
// certificate.
//
// Returns nil for endpoints without TLS (http://, tcp://, ...); there is no
// certificate to inspect. Uses a 10-second dial timeout so a slow or
// unreachable host does not block agent startup indefinitely.
func Check(ctx context.Context, endpoint string, insecureSkipVerify bool) *CertStatus {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil
	}
	port, ok := tlsPort(u.Scheme)
	if !ok {
		return nil // nothing to inspect for plain-text or unparseable endpoints
	}

	cs := &CertStatus{Endpoint: endpoint}

	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		// No explicit port in the URL: append the scheme default.
		host = net.JoinHostPort(host, port)
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{},
		Config: &tls.Config{
			InsecureSkipVerify: insecureSkipVerify, //nolint:gosec
		},
	}

	netConn, err := dialer.DialContext(dialCtx, "tcp", host)
	if err != nil {
		cs.Status = StatusUnreachable
		cs.Err = err
		return cs
	}
	conn := netConn.(*tls.Conn)
	defer conn.Close()

	peerCerts := conn.ConnectionState().PeerCertificates
	if len(peerCerts) == 0 {
		cs.Status = StatusUnreachable
		return cs
	}

	leaf := peerCerts[0]
	daysLeft := time.Until(leaf.NotAfter).Hours() / 24

	cs.NotAfter = leaf.NotAfter.UTC()
	cs.Issuer = leaf.Issuer.CommonName
	cs.DaysLeft = int(math.Floor(daysLeft))

	switch {
	case daysLeft <= 0:
		cs.Status = StatusExpired
	case daysLeft <= expiringDays:
		cs.Status = StatusExpiring
	default:
		cs.Status = StatusValid
	}

	return cs
}

// tlsPort maps a TLS-bearing URL scheme to its default port.
func tlsPort(scheme string) (string, bool) {
	switch scheme {
	case "https", "wss":
		return "443", true
	case "ssl", "tls", "mqtts":
		return "8883", true
	}
	return "", false
}
