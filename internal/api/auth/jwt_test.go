package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sharesphere/spherecore/internal/apperr"
)

func TestIssueAndParse(t *testing.T) {
	v := NewVerifier("secret", "spherecore")
	token, err := v.Issue(42)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	got, err := v.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got != 42 {
		t.Errorf("user id = %d, want 42", got)
	}
}

func TestParseRejects(t *testing.T) {
	v := NewVerifier("secret", "spherecore")
	good, _ := v.Issue(7)

	otherKey, _ := NewVerifier("other", "spherecore").Issue(7)
	otherIssuer, _ := NewVerifier("secret", "elsewhere").Issue(7)
	stale := NewVerifier("secret", "spherecore")
	stale.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, _ := stale.Issue(7)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"garbage", "not-a-token", ErrTokenInvalid},
		{"wrong key", otherKey, ErrTokenInvalid},
		{"wrong issuer", otherIssuer, ErrTokenInvalid},
		{"expired", expired, ErrTokenExpired},
		{"truncated", good[:len(good)-4], ErrTokenInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := v.Parse(tt.token); err != tt.want {
				t.Errorf("Parse() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	v := NewVerifier("secret", "")
	token, _ := v.Issue(9)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantUser   int64
		wantKind   apperr.Kind
	}{
		{"anonymous", "", http.StatusOK, 0, apperr.KindAuthorization},
		{"valid bearer", "Bearer " + token, http.StatusOK, 9, 0},
		{"bad token", "Bearer nope", http.StatusOK, 0, apperr.KindAuthorization},
		{"not bearer", "Basic abc", http.StatusUnauthorized, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUser int64
			var gotErr error
			r := gin.New()
			r.Use(Middleware(v))
			r.GET("/", func(c *gin.Context) {
				gotUser, gotErr = UserID(c)
				c.Status(http.StatusOK)
			})
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			if gotUser != tt.wantUser {
				t.Errorf("user = %d, want %d", gotUser, tt.wantUser)
			}
			if tt.wantUser == 0 && apperr.KindOf(gotErr) != tt.wantKind {
				t.Errorf("UserID error = %v, want kind %v", gotErr, tt.wantKind)
			}
		})
	}
}

func TestViewerID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	v := NewVerifier("secret", "")
	token, _ := v.Issue(9)

	tests := []struct {
		name     string
		header   string
		wantUser int64
		wantErr  bool
	}{
		{"anonymous", "", 0, false},
		{"valid bearer", "Bearer " + token, 9, false},
		{"bad token", "Bearer nope", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUser int64
			var gotErr error
			r := gin.New()
			r.Use(Middleware(v))
			r.GET("/", func(c *gin.Context) {
				gotUser, gotErr = ViewerID(c)
				c.Status(http.StatusOK)
			})
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			r.ServeHTTP(httptest.NewRecorder(), req)

			if gotUser != tt.wantUser || (gotErr != nil) != tt.wantErr {
				t.Errorf("ViewerID() = %d, %v; want %d, error %t", gotUser, gotErr, tt.wantUser, tt.wantErr)
			}
		})
	}
}
