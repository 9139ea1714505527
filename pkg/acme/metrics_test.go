package acme

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_NilRegisterer(t *testing.T) {
	m, err := NewMetrics(nil)
	require.NoError(t, err)
	assert.Nil(t, m)

	// Nil metrics must be safe to record against.
	m.recordOutcome("renewed")
	m.recordNotAfter(time.Now())
}

func TestNewMetrics_RecordsLifecycle(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewMetrics(registry)
	require.NoError(t, err)
	require.NotNil(t, m)

	m.recordOutcome("renewed")
	m.recordOutcome("renewed")
	m.recordOutcome("failed")

	notAfter := time.Now().Add(24 * time.Hour)
	m.recordNotAfter(notAfter)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.renewals.WithLabelValues("renewed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.renewals.WithLabelValues("failed")))
	assert.Equal(t, float64(notAfter.Unix()), testutil.ToFloat64(m.certNotAfter))
}

func TestNewMetrics_DuplicateRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	_, err := NewMetrics(registry)
	require.NoError(t, err)

	_, err = NewMetrics(registry)
	assert.Error(t, err)
}

func TestStoreCertificate_RecordsExpiry(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewMetrics(registry)
	require.NoError(t, err)

	client := &Client{
		config:  Config{StoragePath: t.TempDir()},
		logger:  slog.Default(),
		metrics: m,
	}

	notAfter := time.Now().Add(90 * 24 * time.Hour).Truncate(time.Second)
	certPEM, keyPEM := selfSignedPair(t, notAfter)

	cert, err := client.storeCertificate("ObtainCertificate", certPEM, keyPEM)
	require.NoError(t, err)
	require.NotNil(t, cert)

	assert.Equal(t, float64(notAfter.Unix()), testutil.ToFloat64(m.certNotAfter))
}

// selfSignedPair builds a throwaway certificate and key in PEM form.
func selfSignedPair(t *testing.T, notAfter time.Time) (certPEM, keyPEM []byte) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "bridgekit.local"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
		DNSNames:     []string{"bridgekit.local"},
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	require.NoError(t, err)

	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM
}
