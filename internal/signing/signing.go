// Package signing issues and checks HMAC-signed download links for filled
// documents.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

var (
	ErrMissingParams = errors.New("missing parameters")
	ErrExpired       = errors.New("link expired")
	ErrBadSignature  = errors.New("invalid signature")
)

// Signer generates and validates HMAC based signatures.
type Signer struct {
	secret []byte
	ttl    time.Duration
}

// NewSigner creates a Signer whose links live for ttl.
func NewSigner(secret []byte, ttl time.Duration) *Signer {
	return &Signer{secret: secret, ttl: ttl}
}

// Sign returns the hex signature for a document id and expiry.
func (s *Signer) Sign(documentID string, expiresUnix int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s:%d", documentID, expiresUnix)
	return hex.EncodeToString(mac.Sum(nil))
}

// Validate compares the provided signature with the expected one. Expiry is
// not checked here.
func (s *Signer) Validate(documentID, expires, signature string) bool {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return false
	}
	expected := s.Sign(documentID, exp)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Link is a signed download reference.
type Link struct {
	DocumentID string
	Expires    time.Time
	Signature  string
}

// Query encodes the link as download query parameters.
func (l Link) Query() url.Values {
	q := url.Values{}
	q.Set("document", l.DocumentID)
	q.Set("expires", strconv.FormatInt(l.Expires.Unix(), 10))
	q.Set("signature", l.Signature)
	return q
}

// Link signs a download of documentID valid until now+ttl.
func (s *Signer) Link(documentID string, now time.Time) Link {
	exp := now.Add(s.ttl).Truncate(time.Second)
	return Link{DocumentID: documentID, Expires: exp, Signature: s.Sign(documentID, exp.Unix())}
}

// Verify checks download query parameters and returns the document id.
func (s *Signer) Verify(q url.Values, now time.Time) (string, error) {
	id, expires, signature := q.Get("document"), q.Get("expires"), q.Get("signature")
	if id == "" || expires == "" || signature == "" {
		return "", ErrMissingParams
	}
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: expires %q", ErrBadSignature, expires)
	}
	if time.Unix(exp, 0).Before(now) {
		return "", ErrExpired
	}
	if !s.Validate(id, expires, signature) {
		return "", ErrBadSignature
	}
	return id, nil
}
