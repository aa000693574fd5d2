package qstash

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

const issuer = "Upstash"

var ErrInvalidSignature = errors.New("invalid qstash signature")

type claims struct {
	jwt.RegisteredClaims
	Body string `json:"body"`
}

// Verifier checks the Upstash-Signature JWT that QStash attaches to every
// delivery. The current signing key is tried first, then the next one, so
// key rotation does not drop requests.
type Verifier struct {
	keys []string
	url  string
}

// NewVerifier builds a verifier from the signing keys in cfg. url, when
// non-empty, must match the token subject.
func NewVerifier(cfg Config, url string) (*Verifier, error) {
	var keys []string
	for _, k := range []string{cfg.CurrentSigningKey, cfg.NextSigningKey} {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil, errors.New("qstash signing key is required")
	}
	return &Verifier{keys: keys, url: strings.TrimSpace(url)}, nil
}

func (v *Verifier) Verify(signature string, body []byte) error {
	var errs []error
	for _, key := range v.keys {
		err := v.verifyWithKey(key, signature, body)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	return fmt.Errorf("%w: %v", ErrInvalidSignature, errors.Join(errs...))
}

func (v *Verifier) verifyWithKey(key, signature string, body []byte) error {
	var c claims
	_, err := jwt.ParseWithClaims(signature, &c, func(*jwt.Token) (any, error) {
		return []byte(key), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return err
	}
	if !c.VerifyIssuer(issuer, true) {
		return fmt.Errorf("issuer %q", c.Issuer)
	}
	if v.url != "" && c.Subject != v.url {
		return fmt.Errorf("subject %q does not match %q", c.Subject, v.url)
	}

	sum := sha256.Sum256(body)
	want := strings.TrimRight(base64.URLEncoding.EncodeToString(sum[:]), "=")
	if strings.TrimRight(c.Body, "=") != want {
		return errors.New("body hash mismatch")
	}
	return nil
}
