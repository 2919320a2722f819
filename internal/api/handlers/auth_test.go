package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	domainauth "github.com/martinvidela/chatforge/internal/domain/auth"
)

type authServiceStub struct {
	result *domainauth.Result
	err    error

	gotRegister domainauth.RegisterInput
}

func (s *authServiceStub) Register(_ context.Context, input domainauth.RegisterInput) (*domainauth.Result, error) {
	s.gotRegister = input
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func (s *authServiceStub) Login(_ context.Context, _ domainauth.LoginInput) (*domainauth.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func TestAuthHandler_Register(t *testing.T) {
	t.Parallel()

	t.Run("ok", func(t *testing.T) {
		t.Parallel()

		stub := &authServiceStub{result: &domainauth.Result{Token: "tok", UserID: "u1", Role: "admin"}}
		h := NewAuthHandler(stub)

		body := `{"email":"a@b.com","password":"hunter22","displayName":"Ana"}`
		req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(body))
		rr := httptest.NewRecorder()
		h.Register(rr, req)

		if rr.Code != http.StatusCreated {
			t.Fatalf("status = %d body = %s", rr.Code, rr.Body.String())
		}
		var resp authResponse
		if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Token != "tok" || resp.UserID != "u1" || resp.Role != "admin" {
			t.Errorf("response %+v", resp)
		}
		if stub.gotRegister.DisplayName != "Ana" {
			t.Errorf("displayName = %q", stub.gotRegister.DisplayName)
		}
	})

	t.Run("missing fields", func(t *testing.T) {
		t.Parallel()

		h := NewAuthHandler(&authServiceStub{})
		req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(`{"email":"a@b.com"}`))
		rr := httptest.NewRecorder()
		h.Register(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rr.Code)
		}
	})

	t.Run("duplicate email", func(t *testing.T) {
		t.Parallel()

		h := NewAuthHandler(&authServiceStub{err: domainauth.ErrEmailAlreadyExists})
		body := `{"email":"a@b.com","password":"hunter22"}`
		req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(body))
		rr := httptest.NewRecorder()
		h.Register(rr, req)
		if rr.Code != http.StatusConflict {
			t.Fatalf("status = %d, want 409", rr.Code)
		}
	})
}

func TestAuthHandler_Login(t *testing.T) {
	t.Parallel()

	t.Run("ok", func(t *testing.T) {
		t.Parallel()

		h := NewAuthHandler(&authServiceStub{result: &domainauth.Result{Token: "tok", UserID: "u1", Role: "member"}})
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"a@b.com","password":"hunter22"}`))
		rr := httptest.NewRecorder()
		h.Login(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d body = %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("bad credentials", func(t *testing.T) {
		t.Parallel()

		h := NewAuthHandler(&authServiceStub{err: domainauth.ErrInvalidCredentials})
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"a@b.com","password":"wrong"}`))
		rr := httptest.NewRecorder()
		h.Login(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rr.Code)
		}
	})

	t.Run("invalid body", func(t *testing.T) {
		t.Parallel()

		h := NewAuthHandler(&authServiceStub{})
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{`))
		rr := httptest.NewRecorder()
		h.Login(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rr.Code)
		}
	})
}
