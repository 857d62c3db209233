// Package connection implements C4, the Connection Director: socket
// discovery (spec.md S4.4's TNIR/parallel dial table), the PRELOGIN/TLS/
// LOGIN7 handshake sequence, and the Command lifecycle (timeouts,
// attention/interrupt, session-recovery reconnect) that sits on top of a
// live Channel.
package connection

import (
	"context"
	"sync"
	"time"

	"github.com/tdsgo/tds/dsn"
	"github.com/tdsgo/tds/internal/channel"
	"github.com/tdsgo/tds/internal/fedauth"
	"github.com/tdsgo/tds/internal/logutil"
	"github.com/tdsgo/tds/internal/packetio"
	"github.com/tdsgo/tds/internal/tds"
	"github.com/tdsgo/tds/internal/token"
	"github.com/tdsgo/tds/metrics"
)

// fedAuthResolverFor selects the federated-authentication flow named by
// cfg.Authentication, or nil if SQL password auth is in effect.
func fedAuthResolverFor(cfg *dsn.Config) fedauth.Resolver {
	switch cfg.Authentication {
	case dsn.AuthActiveDirectoryPassword:
		return &fedauth.PasswordResolver{Username: cfg.User, Password: cfg.Password}
	case dsn.AuthActiveDirectoryIntegrated:
		return &fedauth.KerberosResolver{Realm: cfg.Domain, Username: cfg.User, Password: cfg.Password}
	default:
		return nil
	}
}

// Conn is one established TDS session: a Channel plus the negotiated
// packet-size Reader/Writer pair and the session state needed to recover
// from a dropped connection.
type Conn struct {
	mu sync.Mutex

	ch *channel.Channel
	w  *packetio.Writer
	r  *packetio.Reader

	cfg     *dsn.Config
	log     *logutil.Logger
	store   *channel.TrustStore
	policy  ResiliencyPolicy
	session SessionState

	// EngineEdition probe results (SPEC_FULL.md domain-stack supplement),
	// cached after the first post-login SELECT SERVERPROPERTY('EngineEdition').
	engineEdition          int
	isCloudDatabase        bool
	isCloudAnalyticsWarehouse bool

	interrupt interruptState
	timer     *commandTimer

	closed bool
}

// Connect drives the full handshake: resolve, dial, PRELOGIN/TLS, LOGIN7,
// returning a ready-to-use Conn (spec.md S4.4).
func Connect(ctx context.Context, cfg *dsn.Config, log *logutil.Logger) (*Conn, error) {
	if log == nil {
		log = logutil.Default()
	}
	dialStart := time.Now()

	var store *channel.TrustStore
	if cfg.TrustStore != "" {
		kind := channel.TrustStorePEM
		if cfg.TrustStoreType == dsn.TrustStoreTypePKCS12 {
			kind = channel.TrustStorePKCS12
		}
		var err error
		store, err = channel.LoadTrustStore(cfg.TrustStore, kind, []byte(cfg.TrustStorePassword))
		if err != nil {
			return nil, err
		}
		if cfg.WatchTrustStore {
			if err := store.WatchForChanges(log); err != nil {
				log.Warn(logutil.CategoryNetwork, "trust store watch failed to start: "+err.Error())
			}
		}
	}

	host, instance := dsn.SplitHostInstance(cfg.ServerName)
	opts := DialOptions{
		Host:               host,
		Port:               cfg.PortNumber,
		LoginTimeout:       cfg.LoginTimeout,
		UseParallel:        cfg.MultiSubnetFailover,
		UseTNIR:            cfg.TransparentNetworkIPResolution,
		IsTNIRFirstAttempt: cfg.TransparentNetworkIPResolution,
		FullTimeout:        cfg.LoginTimeout,
	}

	netConn, err := Dial(ctx, opts)
	if err != nil {
		metrics.ConnectionAttemptsTotal.WithLabelValues("dial_failed").Inc()
		return nil, err
	}
	metrics.DialDuration.WithLabelValues("tcp").Observe(time.Since(dialStart).Seconds())

	ch := channel.Open(netConn, log)
	ch.SetNetworkTimeoutMs(int(cfg.LoginTimeout / time.Millisecond))

	requestFedAuth := cfg.Authentication == dsn.AuthActiveDirectoryPassword ||
		cfg.Authentication == dsn.AuthActiveDirectoryIntegrated ||
		cfg.Authentication == dsn.AuthActiveDirectoryMSI
	requestColumnEncryption := cfg.ColumnEncryptionSetting == dsn.ColumnEncryptionEnabled

	wireEncrypt := toWireEncryption(cfg.Encrypt)
	pre, err := doPrelogin(ch, wireEncrypt, instance, requestFedAuth)
	if err != nil {
		ch.Close()
		return nil, err
	}

	enableTLS, err := negotiateEncryption(wireEncrypt, pre.encryption)
	if err != nil {
		ch.Close()
		return nil, err
	}
	if enableTLS {
		if err := enableTLSChannel(ch, cfg, store); err != nil {
			ch.Close()
			return nil, err
		}
	}

	w := packetio.NewWriter(ch, tds.InitialPacketSize, 0)
	r := packetio.NewReader(ch, tds.InitialPacketSize)

	outcome, err := doLogin(w, r, cfg, requestFedAuth, requestColumnEncryption, true, fedAuthResolverFor(cfg))
	if err != nil {
		ch.Close()
		metrics.LoginDuration.WithLabelValues("failed").Observe(time.Since(dialStart).Seconds())
		metrics.ConnectionAttemptsTotal.WithLabelValues("login_failed").Inc()
		return nil, err
	}
	metrics.LoginDuration.WithLabelValues("success").Observe(time.Since(dialStart).Seconds())

	if enableTLS && cfg.Encrypt != dsn.EncryptRequired && cfg.Encrypt != dsn.EncryptOn {
		ch.DisableSSL()
	}

	packetSize := outcome.packetSize
	if packetSize < tds.MinPacketSize {
		packetSize = tds.DefaultPacketSize
	}
	w.SetPacketSize(packetSize)
	r.SetPacketSize(packetSize)

	c := &Conn{
		ch:      ch,
		w:       w,
		r:       r,
		cfg:     cfg,
		log:     log,
		store:   store,
		session: outcome.sessionState,
		policy: ResiliencyPolicy{
			RetryCount:    cfg.ConnectRetryCount,
			RetryInterval: cfg.ConnectRetryInterval,
			LoginTimeout:  cfg.LoginTimeout,
		},
	}

	if err := c.probeEngineEdition(ctx); err != nil {
		log.Warn(logutil.CategoryNetwork, "engine edition probe failed: "+err.Error())
	}

	metrics.ConnectionAttemptsTotal.WithLabelValues("success").Inc()
	metrics.ConnectionsActive.Inc()
	return c, nil
}

func toWireEncryption(level dsn.EncryptionLevel) uint8 {
	switch level {
	case dsn.EncryptOff:
		return tds.EncryptOff
	case dsn.EncryptOn:
		return tds.EncryptOn
	case dsn.EncryptRequired:
		return tds.EncryptReq
	case dsn.EncryptNotSupported:
		return tds.EncryptNotSup
	default:
		return tds.EncryptOn
	}
}

// Close tears down the underlying Channel (and any trust-store watcher).
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
	}
	if c.store != nil {
		c.store.Close()
	}
	metrics.ConnectionsActive.Dec()
	return c.ch.Close()
}

// IsCloudDatabase reports whether the post-login EngineEdition probe
// identified an Azure SQL Database / Managed Instance endpoint.
func (c *Conn) IsCloudDatabase() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isCloudDatabase
}

// IsCloudAnalyticsWarehouse reports whether EngineEdition identified a
// Synapse Analytics / Fabric warehouse endpoint.
func (c *Conn) IsCloudAnalyticsWarehouse() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isCloudAnalyticsWarehouse
}

// Interrupt requests cancellation of the in-flight command by queuing an
// ATTENTION packet; idempotent (spec.md S5).
func (c *Conn) Interrupt(reason string) error {
	if !c.interrupt.interrupt(reason) {
		return nil
	}
	metrics.AttentionsTotal.WithLabelValues(reason).Inc()
	return c.sendAttention()
}

func (c *Conn) sendAttention() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.w.StartMessage(tds.PacketAttention)
	return c.w.EndMessage()
}

// StartCommandTimeout arms the cooperative command timer that interrupts
// the connection if timeout elapses before StopCommandTimeout is called.
func (c *Conn) StartCommandTimeout(timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	c.mu.Lock()
	c.timer = startCommandTimer(timeout, func() {
		c.Interrupt("command timeout")
	})
	c.mu.Unlock()
}

// StopCommandTimeout disarms the command timer, if one is running.
func (c *Conn) StopCommandTimeout() {
	c.mu.Lock()
	t := c.timer
	c.mu.Unlock()
	if t != nil {
		t.Stop()
	}
}

// Reconnect replays the handshake against a fresh socket when the
// connection has broken mid-query, per the resiliency envelope in
// ResiliencyPolicy (spec.md S4.4).
func (c *Conn) Reconnect(ctx context.Context, queryTimeout time.Duration) error {
	c.mu.Lock()
	policy := c.policy
	cfg := c.cfg
	log := c.log
	store := c.store
	c.mu.Unlock()

	err := reconnect(ctx, policy, queryTimeout, func(attemptCtx context.Context) error {
		fresh, err := Connect(attemptCtx, cfg, log)
		if err != nil {
			metrics.RetriesTotal.WithLabelValues("failed").Inc()
			return err
		}
		c.mu.Lock()
		old := c.ch
		c.ch = fresh.ch
		c.w = fresh.w
		c.r = fresh.r
		c.session = fresh.session
		c.store = fresh.store
		c.mu.Unlock()
		if old != nil {
			old.Close()
		}
		if store != nil && store != fresh.store {
			store.Close()
		}
		metrics.RetriesTotal.WithLabelValues("succeeded").Inc()
		return nil
	})
	return err
}

// probeEngineEdition runs the standard `SELECT CAST(SERVERPROPERTY(...) AS
// INT)` probe once after login so IsCloudDatabase/IsCloudAnalyticsWarehouse
// can answer without a round trip per call (SPEC_FULL.md domain-stack
// supplement; EngineEdition values per Microsoft's documented enumeration:
// 5 = Azure SQL Database, 6 = Azure Synapse Analytics / Fabric warehouse,
// 8 = Azure SQL Managed Instance).
func (c *Conn) probeEngineEdition(ctx context.Context) error {
	const query = "SELECT CAST(SERVERPROPERTY('EngineEdition') AS INT)"

	c.mu.Lock()
	c.w.StartMessage(tds.PacketSQLBatch)
	if err := c.w.WriteUnicodeString(query); err != nil {
		c.mu.Unlock()
		return err
	}
	if err := c.w.EndMessage(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.r.BeginMessage()

	h := &engineEditionHandler{}
	p := token.NewParser(c.r, h)
	err := p.Run()
	c.mu.Unlock()
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.engineEdition = h.edition
	c.isCloudDatabase = h.edition == 5 || h.edition == 8
	c.isCloudAnalyticsWarehouse = h.edition == 6
	c.mu.Unlock()
	return nil
}
