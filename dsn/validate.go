package dsn

// validate applies the range and cross-field checks spec.md S6 calls out
// explicitly, plus the FIPS posture check from spec.md S4.1. All parsing
// happens before any socket is opened, so a bad connection string never
// reaches the network layer.
func validate(cfg *Config) error {
	if cfg.ServerName == "" {
		return errInvalid("serverName is required")
	}
	if cfg.ConnectRetryCount < 0 || cfg.ConnectRetryCount > 255 {
		return errInvalid("connectRetryCount must be in [0,255], got %d", cfg.ConnectRetryCount)
	}
	if iv := int(cfg.ConnectRetryInterval.Seconds()); cfg.ConnectRetryCount > 0 && (iv < 1 || iv > 60) {
		return errInvalid("connectRetryInterval must be in [1,60] seconds, got %d", iv)
	}
	if cfg.IntegratedSecurity && cfg.Authentication != AuthNotSpecified && cfg.Authentication != AuthActiveDirectoryIntegrated {
		return errInvalid("integratedSecurity=true conflicts with authentication=%s", cfg.Authentication)
	}
	switch cfg.Authentication {
	case AuthNotSpecified, AuthSQLPassword, AuthActiveDirectoryPassword, AuthActiveDirectoryIntegrated, AuthActiveDirectoryMSI:
	default:
		return errInvalid("unrecognized authentication mode %q", cfg.Authentication)
	}
	if cfg.Authentication == AuthActiveDirectoryPassword && (cfg.User == "" || cfg.Password == "") {
		return errInvalid("authentication=ActiveDirectoryPassword requires user and password")
	}
	switch cfg.ColumnEncryptionSetting {
	case ColumnEncryptionDisabled, ColumnEncryptionEnabled:
	default:
		return errInvalid("unrecognized columnEncryptionSetting %q", cfg.ColumnEncryptionSetting)
	}
	if cfg.TrustStore != "" && cfg.TrustStoreType == TrustStoreTypeNone {
		return errInvalid("trustStore requires trustStoreType to be set")
	}
	switch cfg.TrustStoreType {
	case TrustStoreTypeNone, TrustStoreTypePEM, TrustStoreTypePKCS12:
	default:
		return errInvalid("unrecognized trustStoreType %q", cfg.TrustStoreType)
	}

	if cfg.FIPS {
		if err := validateFIPS(cfg); err != nil {
			return err
		}
	}
	return nil
}

// validateFIPS enforces spec.md S4.1's FIPS posture: encryption on, no
// trust-everything escape hatch, and a trust-store path must declare its
// type.
func validateFIPS(cfg *Config) error {
	if cfg.Encrypt == EncryptOff || cfg.Encrypt == EncryptNotSupported {
		return errInvalidFIPS("fips requires encrypt to be on or required")
	}
	if cfg.TrustServerCertificate {
		return errInvalidFIPS("fips requires trustServerCertificate to be false")
	}
	if cfg.TrustStore != "" && cfg.TrustStoreType == TrustStoreTypeNone {
		return errInvalidFIPS("fips with a trust store set requires trustStoreType")
	}
	return nil
}
