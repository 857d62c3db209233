package connection

import (
	"crypto/tls"
	"os"
	"os/user"

	"github.com/tdsgo/tds/dsn"
	"github.com/tdsgo/tds/internal/channel"
	"github.com/tdsgo/tds/internal/errs"
	"github.com/tdsgo/tds/internal/fedauth"
	"github.com/tdsgo/tds/internal/packetio"
	"github.com/tdsgo/tds/internal/tds"
	"github.com/tdsgo/tds/internal/token"
	"github.com/tdsgo/tds/version"
)

// loginOutcome captures everything a successful LOGIN7 round trip yields
// that the rest of Connect needs: the negotiated packet size, the
// server's version/program info, the initial database/collation from any
// ENVCHANGE tokens, and the FEDAUTHINFO challenge if the server sent one
// (already answered inline by loginHandler.OnFedAuthInfo when a resolver
// was supplied).
type loginOutcome struct {
	ack          token.LoginAck
	database     string
	packetSize   int
	fedAuthInfo  *token.FedAuthInfo
	needsFedAuth bool
	extAckSeen   bool
	sessionState SessionState
}

// SessionState captures what a session-recovery reconnect needs to
// restore (spec.md S4.4 resiliency; supplemented per SPEC_FULL.md S6 with
// the ANSI SET options and collation a real recovery payload carries,
// even though this core only replays a subset).
type SessionState struct {
	Database          string
	Language          string
	Collation         []byte
	PacketSize        int
	TransactionDesc   []byte
	ANSISetOptions    uint16
}

// doLogin builds and sends a LOGIN7 packet, then drives the token parser
// over the response until LOGIN_ACK/DONE settle out (spec.md S4.4).
// fedAuthResolver, when non-nil, is invoked the moment a FEDAUTHINFO token
// arrives so the FEDAUTH_TOKEN reply can be written back on the same
// login round trip (spec.md S4.4 federated authentication).
func doLogin(w *packetio.Writer, r *packetio.Reader, cfg *dsn.Config, requestFedAuth, requestColumnEncryption, requestSessionRecovery bool, fedAuthResolver fedauth.Resolver) (*loginOutcome, error) {
	l7 := buildLogin7(cfg, requestFedAuth, requestColumnEncryption, requestSessionRecovery)

	w.StartMessage(tds.PacketLogin7)
	w.WriteBytes(l7.Encode())
	if err := w.EndMessage(); err != nil {
		return nil, errs.Wrap(err, errs.KindNetworkIO, "connection.doLogin", "sending LOGIN7")
	}

	r.BeginMessage()
	h := &loginHandler{requestedColumnEncryption: requestColumnEncryption, w: w, fedAuthResolver: fedAuthResolver}
	p := token.NewParser(r, h)
	p.RequireColumnEncryption(requestColumnEncryption)
	if err := p.Run(); err != nil {
		return nil, err
	}
	if h.serverErr != nil && h.serverErr.Fatal() {
		return nil, errs.Wrap(h.serverErr, errs.KindLoginFailed, "connection.doLogin", "server rejected login")
	}

	return &loginOutcome{
		ack:          h.ack,
		database:     h.database,
		packetSize:   h.packetSize,
		fedAuthInfo:  h.fedAuthInfo,
		needsFedAuth: h.fedAuthInfo != nil,
		extAckSeen:   h.extAckSeen,
		sessionState: h.sessionState,
	}, nil
}

func buildLogin7(cfg *dsn.Config, requestFedAuth, requestColumnEncryption, requestSessionRecovery bool) *tds.Login7 {
	fb := newFeatureExtBuilder()
	if requestColumnEncryption {
		fb.add(featureExtColumnEncryption, columnEncryptionFeatureData())
	}
	if requestSessionRecovery {
		fb.add(featureExtSessionRecovery, sessionRecoveryFeatureData())
	}
	if requestFedAuth {
		libType := uint8(0x02)
		if cfg.Authentication == dsn.AuthActiveDirectoryIntegrated {
			libType = 0x00
		}
		fb.add(featureExtFedAuth, fedAuthFeatureData(libType, true))
	}

	l7 := &tds.Login7{
		TDSVersion:     tds.VerDenali,
		PacketSize:     uint32(tds.DefaultPacketSize),
		ClientProgVer:  version.ProgVer(),
		ClientPID:      uint32(os.Getpid()),
		OptionFlags1:   tds.FlagByteOrder | tds.FlagChar | tds.FlagUseDB | tds.FlagDatabase | tds.FlagSetLang,
		OptionFlags2:   tds.FlagODBC,
		OptionFlags3:   tds.FlagExtension,
		HostName:       clientHostName(),
		UserName:       cfg.User,
		Password:       cfg.Password,
		AppName:        version.DriverName,
		ServerName:     cfg.ServerName,
		CtlIntName:     version.DriverName,
		Language:       "",
		Database:       cfg.DatabaseName,
		FeatureExt:     fb.build(),
	}
	if cfg.IntegratedSecurity {
		l7.OptionFlags2 |= tds.FlagIntSecurity
	}
	return l7
}

func clientHostName() string {
	if h, err := os.Hostname(); err == nil {
		return h
	}
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return "unknown"
}

// loginHandler implements token.Handler for the duration of one LOGIN7
// round trip: it only needs a handful of tokens (LOGINACK, ENVCHANGE,
// FEATURE_EXT_ACK, ERROR/INFO, FEDAUTHINFO, DONE) and stops the parser
// loop as soon as DONE is final.
type loginHandler struct {
	requestedColumnEncryption bool
	w                         *packetio.Writer
	fedAuthResolver           fedauth.Resolver

	ack          token.LoginAck
	database     string
	packetSize   int
	extAckSeen   bool
	serverErr    *tds.ServerError
	fedAuthInfo  *token.FedAuthInfo
	fedAuthErr   error
	sessionState SessionState
}

func (h *loginHandler) OnEOF() error { return nil }

func (h *loginHandler) OnError(e *tds.ServerError) (bool, error) {
	if h.serverErr == nil {
		h.serverErr = e
	}
	return true, nil
}

func (h *loginHandler) OnInfo(e *tds.ServerError) (bool, error) { return true, nil }

func (h *loginHandler) OnEnvChange(ch token.EnvChange) (bool, error) {
	switch ch.SubType {
	case tds.EnvDatabase:
		h.database = ch.NewValue
		h.sessionState.Database = ch.NewValue
	case tds.EnvPacketSize:
		h.packetSize = ch.NewPacketSize
		h.sessionState.PacketSize = ch.NewPacketSize
	case tds.EnvLanguage:
		h.sessionState.Language = ch.NewValue
	case tds.EnvBeginTran:
		h.sessionState.TransactionDesc = ch.TranDescriptor
	}
	return true, nil
}

func (h *loginHandler) OnLoginAck(ack token.LoginAck) (bool, error) {
	h.ack = ack
	return true, nil
}

func (h *loginHandler) OnFeatureExtAck(raw []byte) error {
	h.extAckSeen = true
	return nil
}

func (h *loginHandler) OnDone(d token.Done) (bool, error) {
	return !d.Final(), nil
}

func (h *loginHandler) OnColMetadata(cols []tds.Column) (bool, error) { return true, nil }
func (h *loginHandler) OnRow(cols []tds.Column, values []interface{}) (bool, error) {
	return true, nil
}
func (h *loginHandler) OnNBCRow(cols []tds.Column, values []interface{}) (bool, error) {
	return true, nil
}
func (h *loginHandler) OnReturnStatus(status int32) (bool, error)       { return true, nil }
func (h *loginHandler) OnReturnValue() (bool, error)                    { return true, nil }
func (h *loginHandler) OnIgnoredLengthPrefixed(t tds.TokenType) (bool, error) {
	return true, nil
}
func (h *loginHandler) OnSSPI(raw []byte) (bool, error) { return true, nil }

func (h *loginHandler) OnFedAuthInfo(info token.FedAuthInfo) (bool, error) {
	h.fedAuthInfo = &info
	if h.fedAuthResolver == nil {
		return true, nil
	}
	tok, err := h.fedAuthResolver.Resolve(info.STSURL, info.SPN)
	if err != nil {
		h.fedAuthErr = err
		return false, err
	}
	h.w.StartMessage(tds.PacketFedAuthToken)
	h.w.WriteBytes(fedauth.BuildFedAuthToken(tok, nil))
	if err := h.w.EndMessage(); err != nil {
		return false, errs.Wrap(err, errs.KindFedAuthFailed, "connection.loginHandler.OnFedAuthInfo", "sending FEDAUTH_TOKEN")
	}
	return true, nil
}

// enableTLSChannel drives Channel.EnableSSL with the trust configuration
// derived from cfg. It does not clear the trust store password:
// LoadTrustStore zeroes only the byte copy Connect passes it, and
// cfg.TrustStorePassword keeps its value.
func enableTLSChannel(ch *channel.Channel, cfg *dsn.Config, store *channel.TrustStore) error {
	tlsCfg := channel.BuildTLSConfig(cfg.HostNameInCertificate, cfg.TrustServerCertificate, store, minTLSVersionFor(cfg.SSLProtocolMin))
	return ch.EnableSSL(tlsCfg, cfg.LoginTimeout)
}

func minTLSVersionFor(protocol string) uint16 {
	switch protocol {
	case "TLSv1":
		return tls.VersionTLS10
	case "TLSv1.1":
		return tls.VersionTLS11
	case "TLSv1.2":
		return tls.VersionTLS12
	case "TLSv1.3":
		return tls.VersionTLS13
	default:
		return tls.VersionTLS12
	}
}
