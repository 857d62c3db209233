// Package dsn parses and validates the driver's connection-string surface
// (spec.md S6). Parsing is eager: every keyword is validated at
// construction time so a caller never discovers a typo mid-handshake, the
// same "fail before I/O" posture the teacher applies to its own YAML
// configuration in pkg/config.
package dsn

import (
	"time"

	"github.com/tdsgo/tds/internal/errs"
)

// AuthenticationMode selects how login credentials are established.
type AuthenticationMode string

const (
	AuthSQLPassword               AuthenticationMode = "SqlPassword"
	AuthNotSpecified              AuthenticationMode = "NotSpecified"
	AuthActiveDirectoryPassword   AuthenticationMode = "ActiveDirectoryPassword"
	AuthActiveDirectoryIntegrated AuthenticationMode = "ActiveDirectoryIntegrated"
	AuthActiveDirectoryMSI        AuthenticationMode = "ActiveDirectoryMSI"
)

// ColumnEncryptionSetting toggles Always Encrypted parameter/result
// processing.
type ColumnEncryptionSetting string

const (
	ColumnEncryptionDisabled ColumnEncryptionSetting = "Disabled"
	ColumnEncryptionEnabled  ColumnEncryptionSetting = "Enabled"
)

// EncryptionLevel is the negotiated PRELOGIN encryption option (spec.md
// S4.1 enable_ssl argument).
type EncryptionLevel uint8

const (
	EncryptOff EncryptionLevel = iota
	EncryptOn
	EncryptRequired
	EncryptNotSupported
)

// TrustStoreType mirrors channel.TrustStoreType but is kept independent so
// dsn has no import-time dependency on internal/channel.
type TrustStoreType string

const (
	TrustStoreTypeNone   TrustStoreType = ""
	TrustStoreTypePEM    TrustStoreType = "PEM"
	TrustStoreTypePKCS12 TrustStoreType = "PKCS12"
)

// Config is the fully parsed, validated connection configuration. Every
// field has already been range-checked by Parse; downstream packages may
// use the zero-value defaults below without re-validating.
type Config struct {
	ServerName   string
	PortNumber   uint16
	InstanceName string
	DatabaseName string

	User     string
	Password string
	Domain   string

	IntegratedSecurity   bool
	Authentication       AuthenticationMode
	AuthenticationScheme string

	Encrypt                EncryptionLevel
	TrustServerCertificate bool
	HostNameInCertificate  string
	SSLProtocolMin         string

	TrustStore         string
	TrustStorePassword string
	TrustStoreType     TrustStoreType
	WatchTrustStore    bool

	ColumnEncryptionSetting    ColumnEncryptionSetting
	EnclaveAttestationURL      string
	EnclaveAttestationProtocol string

	StatementPoolingCacheSize uint32
	DisableStatementPooling   bool

	CancelQueryTimeout time.Duration
	QueryTimeout       time.Duration
	LoginTimeout       time.Duration

	ConnectRetryCount    int
	ConnectRetryInterval time.Duration

	MultiSubnetFailover            bool
	TransparentNetworkIPResolution bool
	UseBulkCopyForBatchInsert      bool

	FIPS                       bool
	TrustManagerClass          string
	TrustManagerConstructorArg string
}

// Defaults returns a Config with the driver's documented defaults applied,
// mirroring the teacher's pattern of a defaultConfig() constructor rather
// than zero-value structs sprinkled with special-casing.
func Defaults() *Config {
	return &Config{
		PortNumber:                     1433,
		Authentication:                 AuthNotSpecified,
		Encrypt:                        EncryptOn,
		ColumnEncryptionSetting:        ColumnEncryptionDisabled,
		StatementPoolingCacheSize:      0,
		CancelQueryTimeout:             5 * time.Second,
		LoginTimeout:                   8 * time.Second,
		ConnectRetryCount:              1,
		ConnectRetryInterval:           10 * time.Second,
		TransparentNetworkIPResolution: true,
	}
}

// errInvalid is a small helper so validate.go reads as a flat list of
// checks rather than repeating the op string everywhere.
func errInvalid(format string, args ...any) error {
	return errs.Newf(errs.KindConfigInvalid, "dsn.Parse", format, args...)
}

// errInvalidFIPS reports a FIPS posture violation under its own Kind so
// callers can distinguish it from an ordinary keyword error.
func errInvalidFIPS(format string, args ...any) error {
	return errs.Newf(errs.KindFIPSConfig, "dsn.Parse", format, args...)
}
