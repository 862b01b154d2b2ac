package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func serveSecured(opt SecurityOptions, prep func(*gin.Context), mutate func(*http.Request)) http.Header {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if prep != nil {
		r.Use(func(c *gin.Context) { prep(c); c.Next() })
	}
	r.Use(SecurityHeaders(opt))
	r.GET("/digests", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/digests", nil)
	if mutate != nil {
		mutate(req)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Header()
}

func TestSecurityHeaders(t *testing.T) {
	digestOpts := SecurityOptions{CacheControl: "private, no-cache", EnablePolicy: true}
	overTLS := func(r *http.Request) { r.TLS = &tls.ConnectionState{} }
	viaProxy := func(r *http.Request) { r.Header.Set("X-Forwarded-Proto", "HTTPS") }

	cases := []struct {
		name   string
		opt    SecurityOptions
		mutate func(*http.Request)
		want   map[string]string
	}{
		{
			name: "baseline only",
			want: map[string]string{
				"X-Content-Type-Options":            "nosniff",
				"X-Frame-Options":                   "DENY",
				"Referrer-Policy":                   "no-referrer",
				"Cache-Control":                     "",
				"Permissions-Policy":                "",
				"X-Permitted-Cross-Domain-Policies": "",
				"Strict-Transport-Security":         "",
			},
		},
		{
			name: "digest responses stay out of shared caches",
			opt:  digestOpts,
			want: map[string]string{
				"Cache-Control":                     "private, no-cache",
				"Permissions-Policy":                "geolocation=(), microphone=(), camera=(), payment=()",
				"X-Permitted-Cross-Domain-Policies": "none",
			},
		},
		{
			name: "hsts needs https",
			opt:  SecurityOptions{EnableHSTS: true},
			want: map[string]string{"Strict-Transport-Security": ""},
		},
		{
			name:   "hsts default max age over tls",
			opt:    SecurityOptions{EnableHSTS: true},
			mutate: overTLS,
			want:   map[string]string{"Strict-Transport-Security": "max-age=15552000; includeSubDomains; preload"},
		},
		{
			name:   "hsts custom max age behind proxy",
			opt:    SecurityOptions{EnableHSTS: true, HSTSMaxAge: time.Hour},
			mutate: viaProxy,
			want:   map[string]string{"Strict-Transport-Security": "max-age=3600; includeSubDomains; preload"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := serveSecured(tc.opt, nil, tc.mutate)
			for k, v := range tc.want {
				if got := h.Get(k); got != v {
					t.Errorf("%s = %q; want %q", k, got, v)
				}
			}
		})
	}
}

func TestSecurityHeaders_ExposesRequestID(t *testing.T) {
	cases := []struct {
		name, existing, want string
	}{
		{"none yet", "", "X-Request-ID"},
		{"appended", "ETag", "ETag, X-Request-ID"},
		{"already listed", "X-Request-ID, ETag", "X-Request-ID, ETag"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := serveSecured(SecurityOptions{}, func(c *gin.Context) {
				c.Header(requestIDHeader, "rid-1")
				if tc.existing != "" {
					c.Header("Access-Control-Expose-Headers", tc.existing)
				}
			}, nil)
			if got := h.Get("Access-Control-Expose-Headers"); got != tc.want {
				t.Fatalf("expose = %q; want %q", got, tc.want)
			}
		})
	}

	if got := serveSecured(SecurityOptions{}, nil, nil).Get("Access-Control-Expose-Headers"); got != "" {
		t.Fatalf("no request id must leave expose empty, got %q", got)
	}
}

func Test_isHTTPS(t *testing.T) {
	plain := httptest.NewRequest(http.MethodGet, "/", nil)
	tlsReq := httptest.NewRequest(http.MethodGet, "/", nil)
	tlsReq.TLS = &tls.ConnectionState{}
	proxied := httptest.NewRequest(http.MethodGet, "/", nil)
	proxied.Header.Set("X-Forwarded-Proto", "https")
	spoofHTTP := httptest.NewRequest(http.MethodGet, "/", nil)
	spoofHTTP.Header.Set("X-Forwarded-Proto", "http")

	if isHTTPS(plain) || !isHTTPS(tlsReq) || !isHTTPS(proxied) || isHTTPS(spoofHTTP) {
		t.Fatalf("isHTTPS mismatch")
	}
}
