package hmacauth

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var fixedNow = time.Unix(1_700_000_000, 0)

func newVerifier() *Verifier {
	return &Verifier{
		Secret:  "secret",
		MaxSkew: time.Minute,
		Now:     func() time.Time { return fixedNow },
	}
}

func signedRequest(body string, ts time.Time, sig string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/mint", strings.NewReader(body))
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts.Unix(), 10))
	if sig != "" {
		req.Header.Set(HeaderSignature, sig)
	}
	return req
}

func TestMiddleware_AllowsValidSignature(t *testing.T) {
	body := `{"buyer":"0xabc","orderId":"o-1"}`
	ts := strconv.FormatInt(fixedNow.Unix(), 10)
	req := signedRequest(body, fixedNow, Sign("secret", ts, []byte(body)))
	rec := httptest.NewRecorder()

	var seen string
	newVerifier().Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		seen = string(b)
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, body, seen, "body must be readable after verification")
}

func TestMiddleware_AcceptsUppercaseSignature(t *testing.T) {
	body := `{}`
	ts := strconv.FormatInt(fixedNow.Unix(), 10)
	req := signedRequest(body, fixedNow, strings.ToUpper(Sign("secret", ts, []byte(body))))
	rec := httptest.NewRecorder()

	newVerifier().Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddleware_Rejections(t *testing.T) {
	body := `{"foo":"bar"}`
	ts := strconv.FormatInt(fixedNow.Unix(), 10)
	valid := Sign("secret", ts, []byte(body))

	cases := map[string]struct {
		req  *http.Request
		want error
	}{
		"bad signature": {signedRequest(body, fixedNow, "deadbeef"), ErrInvalidSignature},
		"no signature":  {signedRequest(body, fixedNow, ""), ErrMissingSignature},
		"stale":         {signedRequest(body, fixedNow.Add(-2*time.Minute), valid), ErrStaleTimestamp},
		"future":        {signedRequest(body, fixedNow.Add(2*time.Minute), valid), ErrStaleTimestamp},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newVerifier().Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler should not be called")
			})).ServeHTTP(rec, tc.req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.want.Error())
		})
	}
}

func TestMiddleware_MissingTimestamp(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/mint", strings.NewReader(`{}`))
	req.Header.Set(HeaderSignature, "abc")
	rec := httptest.NewRecorder()

	newVerifier().Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), ErrMissingTimestamp.Error())
}

func TestMiddleware_MalformedTimestamp(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/mint", strings.NewReader(`{}`))
	req.Header.Set(HeaderSignature, "abc")
	req.Header.Set(HeaderTimestamp, "yesterday")
	rec := httptest.NewRecorder()

	newVerifier().Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), ErrMalformedTimestamp.Error())
}

func TestMiddleware_OversizedBody(t *testing.T) {
	body := strings.Repeat("a", maxBodyBytes+1)
	ts := strconv.FormatInt(fixedNow.Unix(), 10)
	req := signedRequest(body, fixedNow, Sign("secret", ts, []byte(body)))
	rec := httptest.NewRecorder()

	newVerifier().Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "read body")
}

func TestMiddleware_CustomReject(t *testing.T) {
	v := newVerifier()
	var got error
	v.Reject = func(w http.ResponseWriter, r *http.Request, err error) {
		got = err
		w.WriteHeader(http.StatusForbidden)
	}
	rec := httptest.NewRecorder()

	v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	})).ServeHTTP(rec, signedRequest(`{}`, fixedNow, "deadbeef"))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.ErrorIs(t, got, ErrInvalidSignature)
}

func TestMiddleware_DisabledWithoutSecret(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/mint", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()

	called := false
	(&Verifier{}).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})).ServeHTTP(rec, req)

	assert.True(t, called)
}
