package webhook

import (
	"errors"
	"regexp"

	gh "github.com/google/go-github/v68/github"
)

// Signature verification failures. All of them are reported as 403.
var (
	ErrMissingSignature    = errors.New("missing signature header")
	ErrSignatureFormat     = errors.New("invalid signature format")
	ErrSignatureMismatch   = errors.New("invalid signature")
	ErrSecretNotConfigured = errors.New("webhook secret not configured")
)

// signatureFormat matches an X-Hub-Signature-256 value. SHA-1 and SHA-512
// signatures are rejected even though go-github would accept them.
var signatureFormat = regexp.MustCompile(`^sha256=[0-9a-fA-F]{64}$`)

// VerifySignature checks header against the HMAC-SHA256 of body keyed with
// secret. The digest comparison is constant time.
func VerifySignature(secret, body []byte, header string) error {
	if header == "" {
		return ErrMissingSignature
	}
	if !signatureFormat.MatchString(header) {
		return ErrSignatureFormat
	}
	if err := gh.ValidateSignature(header, body, secret); err != nil {
		return ErrSignatureMismatch
	}
	return nil
}
