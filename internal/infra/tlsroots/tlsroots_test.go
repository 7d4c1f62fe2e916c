package tlsroots

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type keyPair struct {
	cert    *x509.Certificate
	key     *ecdsa.PrivateKey
	certPEM []byte
	keyPEM  []byte
}

// issue creates a certificate for cn signed by parent, or self-signed
// when parent is nil.
func issue(t *testing.T, cn string, parent *keyPair, isCA bool) *keyPair {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	serial, _ := rand.Int(rand.Reader, big.NewInt(1<<62))
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		IsCA:         isCA,

		BasicConstraintsValid: true,
	}

	signer, signerKey := tmpl, key
	if parent != nil {
		signer, signerKey = parent.cert, parent.key
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, signer, &key.PublicKey, signerKey)
	if err != nil {
		t.Fatal(err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	return &keyPair{
		cert:    cert,
		key:     key,
		certPEM: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		keyPEM:  pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}),
	}
}

func writePair(t *testing.T, dir string, kp *keyPair) (certFile, keyFile string) {
	t.Helper()
	certFile = filepath.Join(dir, "server.crt")
	keyFile = filepath.Join(dir, "server.key")
	if err := os.WriteFile(certFile, kp.certPEM, 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, kp.keyPEM, 0600); err != nil {
		t.Fatal(err)
	}
	return certFile, keyFile
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPool(t *testing.T) {
	ca := issue(t, "ca", nil, true)
	other := issue(t, "other-ca", nil, true)

	p := NewPool()
	bundle := append(append([]byte{}, ca.certPEM...), ca.keyPEM...)
	bundle = append(bundle, other.certPEM...)
	if err := p.AddCertPEM(bundle); err != nil {
		t.Fatalf("AddCertPEM: %v", err)
	}
	if p.Len() != 2 {
		t.Errorf("Len = %d, want 2 (key block skipped)", p.Len())
	}

	if err := p.AddCertPEM(ca.keyPEM); !errors.Is(err, ErrNoCertsFound) {
		t.Errorf("key-only PEM err = %v, want ErrNoCertsFound", err)
	}
	if err := p.AddCertPEM([]byte("-----BEGIN CERTIFICATE-----\nbm90IGEgY2VydA==\n-----END CERTIFICATE-----\n")); err == nil {
		t.Error("expected parse error for garbage certificate")
	}
}

func TestLoadPool(t *testing.T) {
	dir := t.TempDir()
	ca := issue(t, "ca", nil, true)
	path := filepath.Join(dir, "ca.pem")
	if err := os.WriteFile(path, ca.certPEM, 0644); err != nil {
		t.Fatal(err)
	}

	p, err := LoadPool(path)
	if err != nil {
		t.Fatalf("LoadPool: %v", err)
	}
	if p.Len() != 1 {
		t.Errorf("Len = %d, want 1", p.Len())
	}

	if _, err := LoadPool(filepath.Join(dir, "missing.pem")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestNewWatcher(t *testing.T) {
	dir := t.TempDir()
	server := issue(t, "server", nil, false)
	certFile, keyFile := writePair(t, dir, server)

	w, err := NewWatcher(certFile, keyFile, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	cert, err := w.GetCertificate(nil)
	if err != nil || cert == nil {
		t.Fatalf("GetCertificate = %v, %v", cert, err)
	}
	if cert.Leaf != nil && cert.Leaf.Subject.CommonName != "server" {
		t.Errorf("CN = %q", cert.Leaf.Subject.CommonName)
	}

	if err := os.WriteFile(certFile, []byte("invalid"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewWatcher(certFile, keyFile); err == nil {
		t.Error("expected error for invalid certificate")
	}
	if _, err := NewWatcher(filepath.Join(dir, "none.crt"), keyFile); err == nil {
		t.Error("expected error for missing certificate")
	}
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	first := issue(t, "first", nil, false)
	certFile, keyFile := writePair(t, dir, first)

	w, err := NewWatcher(certFile, keyFile, WithLogger(quietLogger()), WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	second := issue(t, "second", nil, false)
	writePair(t, dir, second)

	deadline := time.Now().Add(5 * time.Second)
	for {
		cert, _ := w.GetCertificate(nil)
		leaf, err := x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			t.Fatal(err)
		}
		if leaf.Subject.CommonName == "second" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("certificate not reloaded, CN = %q", leaf.Subject.CommonName)
		}
		time.Sleep(20 * time.Millisecond)
	}

	if err := w.Stop(); err != nil {
		t.Errorf("Stop: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

func TestWatcher_FailedReloadKeepsPair(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writePair(t, dir, issue(t, "server", nil, false))

	w, err := NewWatcher(certFile, keyFile, WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}
	before, _ := w.GetCertificate(nil)

	if err := os.WriteFile(keyFile, []byte("broken"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := w.Reload(); err == nil {
		t.Fatal("expected reload error")
	}
	after, _ := w.GetCertificate(nil)
	if after != before {
		t.Error("failed reload replaced the certificate")
	}
}

func TestServerConfig_MutualTLS(t *testing.T) {
	dir := t.TempDir()
	ca := issue(t, "ca", nil, true)
	server := issue(t, "server", ca, false)
	client := issue(t, "client", ca, false)
	certFile, keyFile := writePair(t, dir, server)

	w, err := NewWatcher(certFile, keyFile, WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}
	clientCAs := NewPool()
	if err := clientCAs.AddCertPEM(ca.certPEM); err != nil {
		t.Fatal(err)
	}

	cfg := ServerConfig(w, clientCAs)
	if cfg.ClientAuth != tls.RequireAndVerifyClientCert || cfg.MinVersion != tls.VersionTLS12 {
		t.Errorf("config = %+v", cfg)
	}

	ln, err := tls.Listen("tcp", "127.0.0.1:0", cfg)
	if err != nil {
		t.Fatal(err)
	}
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, r.TLS.PeerCertificates[0].Subject.CommonName)
	})}
	go srv.Serve(ln)
	defer srv.Close()

	roots := x509.NewCertPool()
	roots.AddCert(ca.cert)
	clientPair, err := tls.X509KeyPair(client.certPEM, client.keyPEM)
	if err != nil {
		t.Fatal(err)
	}
	url := "https://" + ln.Addr().String() + "/"

	withCert := &http.Client{Transport: &http.Transport{TLSClientConfig: &tls.Config{
		RootCAs:      roots,
		Certificates: []tls.Certificate{clientPair},
	}}}
	resp, err := withCert.Get(url)
	if err != nil {
		t.Fatalf("GET with client cert: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "client" {
		t.Errorf("peer CN = %q, want client", body)
	}

	withoutCert := &http.Client{Transport: &http.Transport{TLSClientConfig: &tls.Config{RootCAs: roots}}}
	if resp, err := withoutCert.Get(url); err == nil {
		resp.Body.Close()
		t.Error("request without client certificate succeeded")
	}
}

func TestServerConfig_NoClientAuth(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writePair(t, dir, issue(t, "server", nil, false))
	w, err := NewWatcher(certFile, keyFile, WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}

	cfg := ServerConfig(w, nil)
	if cfg.ClientAuth != tls.NoClientCert || cfg.ClientCAs != nil {
		t.Errorf("config = %+v, want no client auth", cfg)
	}
}
