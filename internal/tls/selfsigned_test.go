package tls

import (
	"crypto/tls"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnsureServerCert(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "cert.pem")
	keyPath := filepath.Join(dir, "key.pem")

	require.NoError(t, EnsureServerCert(certPath, keyPath, []string{"localhost", "127.0.0.1"}))

	pair, err := tls.LoadX509KeyPair(certPath, keyPath)
	require.NoError(t, err)
	require.NotEmpty(t, pair.Certificate)

	// A second call must reuse the existing material, not regenerate.
	before, err := os.ReadFile(certPath)
	require.NoError(t, err)
	require.NoError(t, EnsureServerCert(certPath, keyPath, []string{"localhost"}))
	after, err := os.ReadFile(certPath)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestEnsureServerCertDefaultsHost(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, EnsureServerCert(filepath.Join(dir, "c.pem"), filepath.Join(dir, "k.pem"), nil))
}
