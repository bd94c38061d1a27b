package config

import (
	"crypto/tls"
	"crypto/x509"
	"os"

	"go.uber.org/zap"
)

// CAEnvVar is the environment variable that, when set, names an explicit
// CA bundle file to use for outbound TLS connections of the builtin
// OpenAI-compatible client (openai_builtin.go) and the Anthropic client.
// Named to match this repo's own env namespace.
const CAEnvVar = "CLAW_SSL_CA_FILE"

// defaultCABundlePaths are checked in order when CAEnvVar is unset.
var defaultCABundlePaths = []string{
	"/etc/ssl/certs/ca-certificates.crt", // Debian/Ubuntu/Gentoo/Alpine
	"/etc/pki/tls/certs/ca-bundle.crt",   // RHEL/CentOS/Fedora
	"/etc/ssl/cert.pem",                  // macOS/OpenBSD
}

// CAConfig resolves the CA bundle file the process should trust, honoring
// CLAW_SSL_CA_FILE first. It never fails construction — an unresolved
// bundle just means the Go runtime falls back to its own system cert pool,
// which is logged as a warning rather than an error.
type CAConfig struct {
	BundlePath string // empty if none found; caller keeps using the default pool
}

// ResolveCABundle finds the CA bundle file to use, checking CLAW_SSL_CA_FILE
// then the common per-distro paths in order.
func ResolveCABundle(logger *zap.Logger) CAConfig {
	if path := os.Getenv(CAEnvVar); path != "" {
		if fileExists(path) {
			return CAConfig{BundlePath: path}
		}
		logger.Warn("CLAW_SSL_CA_FILE set but file does not exist, falling back to system defaults",
			zap.String("path", path),
		)
	}

	for _, path := range defaultCABundlePaths {
		if fileExists(path) {
			return CAConfig{BundlePath: path}
		}
	}

	logger.Warn("no CA bundle found in common locations, using Go's built-in system cert pool",
		zap.Strings("checked", defaultCABundlePaths),
	)
	return CAConfig{}
}

// TLSConfig builds a minimal TLS config trusting BundlePath's certs in
// addition to (not instead of) the Go runtime's system pool. Returns a
// plain MinVersion-only config when no bundle was resolved.
func (c CAConfig) TLSConfig(logger *zap.Logger) *tls.Config {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if c.BundlePath == "" {
		return cfg
	}

	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	raw, err := os.ReadFile(c.BundlePath)
	if err != nil {
		logger.Warn("failed to read resolved CA bundle, using system pool only",
			zap.String("path", c.BundlePath),
			zap.Error(err),
		)
		return cfg
	}
	if !pool.AppendCertsFromPEM(raw) {
		logger.Warn("CA bundle contained no usable certificates", zap.String("path", c.BundlePath))
		return cfg
	}
	cfg.RootCAs = pool
	return cfg
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
