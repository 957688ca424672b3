package hmacauth

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"trustify/internal/log"
)

const (
	HeaderSignature = "X-Request-Signature"
	HeaderTimestamp = "X-Request-Timestamp"

	maxBodyBytes = 1 << 20
)

var (
	ErrMissingSignature   = errors.New("missing request signature")
	ErrMissingTimestamp   = errors.New("missing request timestamp")
	ErrMalformedTimestamp = errors.New("malformed request timestamp")
	ErrStaleTimestamp     = errors.New("stale request timestamp")
	ErrInvalidSignature   = errors.New("invalid request signature")
)

// Verifier checks hex(HMAC-SHA256(secret, timestamp || body)). An empty Secret disables it.
type Verifier struct {
	Secret  string
	MaxSkew time.Duration
	Now     func() time.Time
	// Reject writes the response for a request that failed verification.
	// Defaults to a plain text 401.
	Reject func(w http.ResponseWriter, r *http.Request, err error)
}

func (v *Verifier) Enabled() bool {
	return v != nil && v.Secret != ""
}

// Middleware hands next a request whose body can still be read in full.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	if !v.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := v.authenticate(w, r)
		if err != nil {
			log.L(r.Context()).Warnf("Rejected %s %s: %s", r.Method, r.URL.Path, err)
			v.reject(w, r, err)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r)
	})
}

func (v *Verifier) reject(w http.ResponseWriter, r *http.Request, err error) {
	if v.Reject != nil {
		v.Reject(w, r, err)
		return
	}
	http.Error(w, err.Error(), http.StatusUnauthorized)
}

func (v *Verifier) authenticate(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	sig := strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderSignature)))
	if sig == "" {
		return nil, ErrMissingSignature
	}
	ts := r.Header.Get(HeaderTimestamp)
	if err := v.checkTimestamp(ts); err != nil {
		return nil, err
	}

	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		_ = r.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
	}

	if !hmac.Equal([]byte(Sign(v.Secret, ts, body)), []byte(sig)) {
		return nil, ErrInvalidSignature
	}
	return body, nil
}

func (v *Verifier) checkTimestamp(raw string) error {
	if raw == "" {
		return ErrMissingTimestamp
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrMalformedTimestamp, raw)
	}

	now := time.Now()
	if v.Now != nil {
		now = v.Now()
	}
	drift := now.Sub(time.Unix(secs, 0))
	if drift < 0 {
		drift = -drift
	}
	if drift > v.MaxSkew {
		return ErrStaleTimestamp
	}
	return nil
}

// Sign returns the lowercase hex signature a caller must send for body at timestamp.
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
