package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/halverson/stackpad/internal/token"
)

// mockService implements Service with overridable function fields.
type mockService struct {
	registerFunc func(ctx context.Context, input RegisterInput) (*User, error)
	loginFunc    func(ctx context.Context, input LoginInput) (*User, error)
	googleFunc   func(ctx context.Context, email string) (*User, error)
	getFunc      func(ctx context.Context, id string) (*User, error)
}

func (m *mockService) Register(ctx context.Context, input RegisterInput) (*User, error) {
	return m.registerFunc(ctx, input)
}

func (m *mockService) Login(ctx context.Context, input LoginInput) (*User, error) {
	return m.loginFunc(ctx, input)
}

func (m *mockService) SignInWithGoogle(ctx context.Context, email string) (*User, error) {
	return m.googleFunc(ctx, email)
}

func (m *mockService) GetConnectedUser(ctx context.Context, id string) (*User, error) {
	return m.getFunc(ctx, id)
}

func newHandlerFixture(svc Service) *Handler {
	codec := token.NewCodec(testSecret, time.Hour)
	return NewHandler(svc, codec, time.Hour)
}

func postJSON(t *testing.T, h echo.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	if err := h(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return rec
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookieName {
			return c
		}
	}
	return nil
}

func TestLoginHandler_SetsSessionCookie(t *testing.T) {
	svc := &mockService{
		loginFunc: func(ctx context.Context, input LoginInput) (*User, error) {
			return &User{ID: "u1", Username: input.Username, Role: RoleUser}, nil
		},
	}
	h := newHandlerFixture(svc)

	rec := postJSON(t, h.Login, `{"username":"jane","password":"Str0ng!pass"}`)

	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	cookie := sessionCookie(rec)
	if cookie == nil {
		t.Fatal("expected session cookie on login response")
	}
	if !cookie.HttpOnly {
		t.Error("session cookie must be HttpOnly")
	}
	if cookie.Path != "/" {
		t.Errorf("expected cookie path /, got %q", cookie.Path)
	}
	if cookie.MaxAge <= 0 {
		t.Errorf("expected positive MaxAge, got %d", cookie.MaxAge)
	}

	// The cookie must carry a token that verifies back to the user.
	codec := token.NewCodec(testSecret, time.Hour)
	subject, err := codec.Verify(cookie.Value)
	if err != nil {
		t.Fatalf("cookie token does not verify: %v", err)
	}
	if subject != "u1" {
		t.Errorf("expected token subject u1, got %q", subject)
	}
}

func TestRegisterHandler_ReturnsUserWithoutHash(t *testing.T) {
	svc := &mockService{
		registerFunc: func(ctx context.Context, input RegisterInput) (*User, error) {
			return &User{
				ID:           "u1",
				Username:     input.Username,
				Email:        input.Email,
				PasswordHash: "$2a$10$secret",
				Role:         RoleAdmin,
			}, nil
		},
	}
	h := newHandlerFixture(svc)

	rec := postJSON(t, h.Register,
		`{"name":"Doe","forename":"Jane","email":"jane@example.com","username":"jane","password":"Str0ng!pass","confirmPassword":"Str0ng!pass"}`)

	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "$2a$10$secret") {
		t.Error("password hash must never appear in a response body")
	}

	var body struct {
		User User `json:"user"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body.User.Role != RoleAdmin {
		t.Errorf("expected role admin in response, got %q", body.User.Role)
	}
}

func TestLogoutHandler_ClearsCookie(t *testing.T) {
	h := newHandlerFixture(&mockService{})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/auth/logout", nil)
	rec := httptest.NewRecorder()
	if err := h.Logout(e.NewContext(req, rec)); err != nil {
		t.Fatalf("logout returned error: %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	cookie := sessionCookie(rec)
	if cookie == nil {
		t.Fatal("expected clearing cookie on logout response")
	}
	if cookie.MaxAge >= 0 || cookie.Value != "" {
		t.Errorf("expected expired empty cookie, got MaxAge=%d Value=%q", cookie.MaxAge, cookie.Value)
	}
}

func TestLogoutHandler_IdempotentWithoutSession(t *testing.T) {
	h := newHandlerFixture(&mockService{})

	e := echo.New()
	// No cookie on the request at all.
	req := httptest.NewRequest(http.MethodGet, "/api/auth/logout", nil)
	rec := httptest.NewRecorder()
	if err := h.Logout(e.NewContext(req, rec)); err != nil {
		t.Fatalf("logout without session should succeed, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}
