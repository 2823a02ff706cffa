package lib

import (
	"errors"
	"fmt"
)

var (
	ErrMailboxNotFound = errors.New("mailbox not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrAccountNotFound = errors.New("account not found")

	ErrCredential           = errors.New("credential error")
	ErrAuth                 = errors.New("authentication error")
	ErrRevoked              = errors.New("authorization revoked")
	ErrBackendUnavailable   = errors.New("backend unavailable")
	ErrUnsupportedOperation = errors.New("unsupported operation")
	ErrCrypto               = errors.New("crypto error")
	ErrReindexRequired      = errors.New("index is out of date, reindex required")
)

type CredentialErrorKind int

const (
	CredentialNotFound CredentialErrorKind = iota
	CredentialVaultLocked
	CredentialDecryptionFailed
)

func (k CredentialErrorKind) String() string {
	switch k {
	case CredentialNotFound:
		return "not found"
	case CredentialVaultLocked:
		return "vault locked"
	case CredentialDecryptionFailed:
		return "decryption failed"
	default:
		return "unknown"
	}
}

// CredentialError is returned when no secret can be resolved for an account
type CredentialError struct {
	Kind    CredentialErrorKind
	Account string
	Err     error
}

func (e *CredentialError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("credential for account %q: %s: %s", e.Account, e.Kind, e.Err)
	}
	return fmt.Sprintf("credential for account %q: %s", e.Account, e.Kind)
}

func (e *CredentialError) Is(target error) bool {
	return target == ErrCredential
}

func (e *CredentialError) Unwrap() error {
	return e.Err
}

// AuthError is returned by the OAuth2 flow and by servers rejecting a credential
type AuthError struct {
	Account string
	Revoked bool
	Err     error
}

func (e *AuthError) Error() string {
	msg := fmt.Sprintf("authentication failed for account %q", e.Account)
	if e.Revoked {
		msg += ": authorization revoked, run the authorization flow again"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthError) Is(target error) bool {
	return target == ErrAuth || (e.Revoked && target == ErrRevoked)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// BackendUnavailableError is returned when a backend cannot reach its server
// or filesystem once its own retry policy is exhausted
type BackendUnavailableError struct {
	Backend BackendKind
	Err     error
}

func (e *BackendUnavailableError) Error() string {
	return fmt.Sprintf("%s backend unavailable: %s", e.Backend, e.Err)
}

func (e *BackendUnavailableError) Is(target error) bool {
	return target == ErrBackendUnavailable
}

func (e *BackendUnavailableError) Unwrap() error {
	return e.Err
}

type UnsupportedOperationError struct {
	Backend    BackendKind
	Capability Capability
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("%s backend does not support %s", e.Backend, e.Capability)
}

func (e *UnsupportedOperationError) Is(target error) bool {
	return target == ErrUnsupportedOperation
}

// Unsupported returns the error for a capability missing from a backend
func Unsupported(backend BackendKind, capability Capability) error {
	return &UnsupportedOperationError{Backend: backend, Capability: capability}
}

type CryptoErrorKind int

const (
	CryptoNoPublicKey CryptoErrorKind = iota
	CryptoEncryptionFailed
	CryptoDecryptionFailed
)

func (k CryptoErrorKind) String() string {
	switch k {
	case CryptoNoPublicKey:
		return "no public key"
	case CryptoEncryptionFailed:
		return "encryption failed"
	case CryptoDecryptionFailed:
		return "decryption failed"
	default:
		return "unknown"
	}
}

type CryptoError struct {
	Kind CryptoErrorKind
	// Recipient is set for NoPublicKey
	Recipient string
	Err       error
}

func (e *CryptoError) Error() string {
	msg := e.Kind.String()
	if e.Recipient != "" {
		msg += " for " + e.Recipient
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CryptoError) Is(target error) bool {
	return target == ErrCrypto
}

func (e *CryptoError) Unwrap() error {
	return e.Err
}
