package channel

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/crypto/pkcs12"

	"github.com/tdsgo/tds/internal/errs"
	"github.com/tdsgo/tds/internal/logutil"
)

// TrustStoreType selects the on-disk format of a caller-supplied trust
// store file.
type TrustStoreType string

const (
	TrustStorePEM    TrustStoreType = "PEM"
	TrustStorePKCS12 TrustStoreType = "PKCS12"
)

// TrustStore loads a trust-store file into an *x509.CertPool and, on
// request, watches the file for changes so a rotated certificate bundle is
// picked up without reconnecting. Password hygiene: LoadTrustStore
// immediately zeroes the password it was given after use (spec.md S5
// mandatory post-condition of enable_ssl).
type TrustStore struct {
	mu      sync.RWMutex
	pool    *x509.CertPool
	path    string
	kind    TrustStoreType
	watcher *fsnotify.Watcher
}

// LoadTrustStore reads path (PEM or PKCS12, per kind) and decrypts it with
// password if kind is PKCS12. password is overwritten with zeros before
// returning, win or lose.
func LoadTrustStore(path string, kind TrustStoreType, password []byte) (*TrustStore, error) {
	defer zeroBytes(password)

	pool, err := loadPool(path, kind, password)
	if err != nil {
		return nil, err
	}
	return &TrustStore{pool: pool, path: path, kind: kind}, nil
}

func loadPool(path string, kind TrustStoreType, password []byte) (*x509.CertPool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(err, errs.KindConfigInvalid, "channel.loadPool", "reading trust store file")
	}

	pool := x509.NewCertPool()
	switch kind {
	case TrustStorePEM:
		if !pool.AppendCertsFromPEM(raw) {
			return nil, errs.New(errs.KindConfigInvalid, "channel.loadPool", "no certificates found in PEM trust store")
		}
	case TrustStorePKCS12:
		blocks, err := pkcs12.ToPEM(raw, string(password))
		if err != nil {
			return nil, errs.Wrap(err, errs.KindConfigInvalid, "channel.loadPool", "decoding PKCS12 trust store")
		}
		var pemData []byte
		for _, b := range blocks {
			if strings.Contains(b.Type, "CERTIFICATE") {
				pemData = append(pemData, pem.EncodeToMemory(b)...)
			}
		}
		if !pool.AppendCertsFromPEM(pemData) {
			return nil, errs.New(errs.KindConfigInvalid, "channel.loadPool", "no certificates found in PKCS12 trust store")
		}
	default:
		return nil, errs.Newf(errs.KindConfigUnsupported, "channel.loadPool", "unknown trust store type %q", kind)
	}
	return pool, nil
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Pool returns the current certificate pool. Safe to call concurrently
// with a hot-reload in progress.
func (t *TrustStore) Pool() *x509.CertPool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pool
}

// WatchForChanges starts an fsnotify watch on the trust store file; on any
// write event the pool is reloaded in place (password is not needed again
// for PEM stores; PKCS12 stores require passwordless-reload support and
// are skipped with a log warning, matching the teacher's policy of never
// retaining a decrypted password past first use).
func (t *TrustStore) WatchForChanges(log *logutil.Logger) error {
	if log == nil {
		log = logutil.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errs.Wrap(err, errs.KindInternal, "channel.WatchForChanges", "creating fsnotify watcher")
	}
	if err := w.Add(t.path); err != nil {
		w.Close()
		return errs.Wrap(err, errs.KindConfigInvalid, "channel.WatchForChanges", "watching trust store file")
	}
	t.mu.Lock()
	t.watcher = w
	t.mu.Unlock()

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if t.kind == TrustStorePKCS12 {
					log.Warn(logutil.CategoryNetwork, "trust store changed on disk but PKCS12 reload requires the original password; ignoring")
					continue
				}
				pool, err := loadPool(t.path, t.kind, nil)
				if err != nil {
					log.Warn(logutil.CategoryNetwork, "trust store reload failed: "+err.Error())
					continue
				}
				t.mu.Lock()
				t.pool = pool
				t.mu.Unlock()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn(logutil.CategoryNetwork, "trust store watcher error: "+err.Error())
			}
		}
	}()
	return nil
}

func (t *TrustStore) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.watcher != nil {
		return t.watcher.Close()
	}
	return nil
}

// BuildTLSConfig constructs the *tls.Config for EnableSSL given the trust
// model selected by the connection string: permissive (no validation),
// system-default chain, or a caller-supplied trust store (spec.md S4.1
// "Certificate validation options").
func BuildTLSConfig(serverName string, trustServerCertificate bool, store *TrustStore, minVersion uint16) *tls.Config {
	cfg := &tls.Config{
		ServerName: serverName,
		MinVersion: minVersion,
	}
	if trustServerCertificate {
		cfg.InsecureSkipVerify = true
		return cfg
	}
	if store != nil {
		cfg.RootCAs = store.Pool()
	}
	return cfg
}
