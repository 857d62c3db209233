// Package errs provides the structured error taxonomy used throughout the
// driver core: configuration, transport, TLS, protocol, authentication,
// execution, and column-encryption failures all carry a stable Kind assigned
// at construction time, so callers branch on Kind rather than on message
// text.
package errs

import (
	"errors"
	"fmt"
)

// Kind is a stable, numeric classification of an error. Kind values are
// assigned at the point the error is constructed and never change as the
// error is wrapped, so a caller can safely branch on them instead of
// string-matching a (possibly localized) message.
type Kind int

const (
	KindInternal Kind = iota

	// Configuration
	KindConfigInvalid
	KindConfigUnsupported

	// Transport
	KindResolveFailed
	KindConnectRefused
	KindConnectTimeout
	KindConnectionClosed
	KindNetworkIO
	KindTruncatedResponse

	// TLS
	KindTLSHandshakeNotStarted
	KindTLSHandshakeIntermittent
	KindTLSCertName
	KindFIPSConfig

	// Protocol
	KindInvalidProtocol
	KindInvalidToken
	KindInvalidIdentifier

	// Authentication
	KindLoginFailed
	KindFedAuthFailed
	KindSessionRecoveryDeclined
	KindEncryptionRequiredButNotSupported
	KindColumnEncryptionNotSupportedByServer

	// Execution
	KindServerError
	KindQueryTimeout
	KindAttentionTimeout

	// Column encryption
	KindCekDecryptionFailed
	KindDecryptionFailed
	KindInvalidCipherMetadata
	KindMissingKeyStoreProvider
	KindEnclaveAttestationFailed
	KindUnexpectedServerSchema
)

func (k Kind) String() string {
	switch k {
	case KindConfigInvalid:
		return "config_invalid"
	case KindConfigUnsupported:
		return "config_unsupported"
	case KindResolveFailed:
		return "resolve_failed"
	case KindConnectRefused:
		return "connect_refused"
	case KindConnectTimeout:
		return "connect_timeout"
	case KindConnectionClosed:
		return "connection_closed"
	case KindNetworkIO:
		return "network_io"
	case KindTruncatedResponse:
		return "truncated_response"
	case KindTLSHandshakeNotStarted:
		return "tls_handshake_not_started"
	case KindTLSHandshakeIntermittent:
		return "tls_handshake_intermittent"
	case KindTLSCertName:
		return "tls_cert_name"
	case KindFIPSConfig:
		return "fips_config"
	case KindInvalidProtocol:
		return "invalid_protocol"
	case KindInvalidToken:
		return "invalid_token"
	case KindInvalidIdentifier:
		return "invalid_identifier"
	case KindLoginFailed:
		return "login_failed"
	case KindFedAuthFailed:
		return "fedauth_failed"
	case KindSessionRecoveryDeclined:
		return "session_recovery_declined"
	case KindEncryptionRequiredButNotSupported:
		return "encryption_required_but_not_supported"
	case KindColumnEncryptionNotSupportedByServer:
		return "ae_not_supported_by_server"
	case KindServerError:
		return "server_error"
	case KindQueryTimeout:
		return "query_timeout"
	case KindAttentionTimeout:
		return "attention_timeout"
	case KindCekDecryptionFailed:
		return "cek_decryption_failed"
	case KindDecryptionFailed:
		return "decryption_failed"
	case KindInvalidCipherMetadata:
		return "invalid_cipher_metadata"
	case KindMissingKeyStoreProvider:
		return "missing_key_store_provider"
	case KindEnclaveAttestationFailed:
		return "enclave_attestation_failed"
	case KindUnexpectedServerSchema:
		return "unexpected_server_schema"
	default:
		return "internal"
	}
}

// Retryable reports whether the error class permits the caller to retry the
// operation that produced it. Intermittent TLS failure is the one fatal-
// looking class that is actually recoverable (spec.md S7): the caller may
// call Channel.Open/EnableSSL again.
func (k Kind) Retryable() bool {
	return k == KindTLSHandshakeIntermittent
}

// Fatal reports whether an error of this kind terminates the owning
// connection (spec.md S7 propagation policy).
func (k Kind) Fatal() bool {
	switch k {
	case KindConnectRefused, KindConnectTimeout, KindConnectionClosed,
		KindNetworkIO, KindTruncatedResponse,
		KindTLSHandshakeNotStarted, KindTLSCertName:
		return true
	default:
		return false
	}
}

// Error is the concrete error type produced by every package in this module.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Fields  map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// WithField attaches a diagnostic field and returns the same error for
// chaining.
func (e *Error) WithField(key string, value any) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	e.Fields[key] = value
	return e
}

// New constructs an Error of the given Kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Newf constructs an Error with a formatted message.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps cause with a Kind and message, preserving the chain for
// errors.Is/As.
func Wrap(cause error, kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Cause: cause}
}

// Wrapf wraps cause with a formatted message.
func Wrapf(cause error, kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf extracts the Kind from err, or KindInternal if err does not carry
// one.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err (or any error it wraps) has the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
