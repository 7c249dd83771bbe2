// Package certs manages the self-signed certificate the host serves HTTPS
// and WSS with. Paired devices pin the certificate by its SHA-256
// fingerprint, which the pairing QR code carries.
package certs

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"log"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	CertFile = "host.crt"
	KeyFile  = "host.key"

	// Validity of generated certificates.
	Validity = 365 * 24 * time.Hour

	// A certificate this close to expiry is replaced on the next Ensure.
	renewBefore = 7 * 24 * time.Hour
)

// Info describes a certificate on disk.
type Info struct {
	CertPath    string
	KeyPath     string
	Fingerprint string
	NotAfter    time.Time
	// Generated is set when Ensure created the files.
	Generated bool
}

// Paths returns the certificate and key paths inside dir.
func Paths(dir string) (certPath, keyPath string) {
	return filepath.Join(dir, CertFile), filepath.Join(dir, KeyFile)
}

// Ensure loads the certificate in dir, generating a new one for hosts when
// it is missing, unreadable or about to expire. hosts defaults to localhost
// and 127.0.0.1; loopback names are always included so the CLI can verify
// the host.
func Ensure(dir string, hosts []string) (*Info, error) {
	certPath, keyPath := Paths(dir)

	if fileExists(certPath) && fileExists(keyPath) {
		info, err := Load(certPath, keyPath)
		if err == nil && time.Until(info.NotAfter) > renewBefore {
			return info, nil
		}
		if err != nil {
			log.Printf("certs: regenerating unreadable certificate: %v", err)
		} else {
			log.Printf("certs: certificate expires %s, regenerating", info.NotAfter.Format(time.RFC3339))
		}
	}
	return generate(certPath, keyPath, withLoopback(hosts), time.Now())
}

// Load reads a certificate and key pair and computes the fingerprint.
func Load(certPath, keyPath string) (*Info, error) {
	pair, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate pair: %w", err)
	}
	cert, err := x509.ParseCertificate(pair.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return &Info{
		CertPath:    certPath,
		KeyPath:     keyPath,
		Fingerprint: Fingerprint(cert),
		NotAfter:    cert.NotAfter,
	}, nil
}

func generate(certPath, keyPath string, hosts []string, now time.Time) (*Info, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	template := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"chrono"},
			CommonName:   "chrono host",
		},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(Validity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}
	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(certPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create certificate directory: %w", err)
	}
	if err := writePEM(keyPath, "PRIVATE KEY", keyDER, 0600); err != nil {
		return nil, err
	}
	if err := writePEM(certPath, "CERTIFICATE", der, 0644); err != nil {
		return nil, err
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse generated certificate: %w", err)
	}
	log.Printf("certs: generated certificate for %s", strings.Join(hosts, ", "))
	return &Info{
		CertPath:    certPath,
		KeyPath:     keyPath,
		Fingerprint: Fingerprint(cert),
		NotAfter:    cert.NotAfter,
		Generated:   true,
	}, nil
}

func writePEM(path, blockType string, der []byte, perm os.FileMode) error {
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	if err := os.WriteFile(path, data, perm); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Fingerprint is the SHA-256 of the DER certificate as colon separated
// uppercase hex ("AA:BB:...").
func Fingerprint(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)
	s := strings.ToUpper(hex.EncodeToString(sum[:]))
	parts := make([]string, 0, len(sum))
	for i := 0; i < len(s); i += 2 {
		parts = append(parts, s[i:i+2])
	}
	return strings.Join(parts, ":")
}

// ServerConfig is the TLS config the host listens with.
func ServerConfig(certPath, keyPath string) (*tls.Config, error) {
	pair, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate pair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{pair},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// ClientConfig trusts only the host certificate at certPath.
func ClientConfig(certPath string) (*tls.Config, error) {
	data, err := os.ReadFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read host certificate: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, errors.New("host certificate is not valid PEM")
	}
	return &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

func withLoopback(hosts []string) []string {
	out := []string{"localhost", "127.0.0.1"}
	for _, h := range hosts {
		if h != "" && h != "localhost" && h != "127.0.0.1" {
			out = append(out, h)
		}
	}
	return out
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
