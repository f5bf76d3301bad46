package httpapp

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"content_blocks/internal/config"
	"content_blocks/internal/domain/models"
	httprouters "content_blocks/internal/transport/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockTokenParser struct {
	mock.Mock
}

func (m *MockTokenParser) ParseAccessToken(accessToken string) (*models.Principal, error) {
	args := m.Called(accessToken)
	if p, ok := args.Get(0).(*models.Principal); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func newTestServer(t *testing.T, tokens TokenParser) *Server {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessionCfg := config.SessionConfig{Name: "session", Secret: "secret", MaxAge: 60}
	routers := httprouters.NewRouter(log, nil, nil, nil, sessionCfg.Name, SessionOptions(sessionCfg))

	s := New(log, config.HTTPConfig{Port: "0"}, sessionCfg, routers, tokens)
	s.e.GET("/probe", func(c echo.Context) error {
		p, _ := httprouters.PrincipalFrom(c)
		return c.String(http.StatusOK, string(p.Role))
	}, s.identify, s.RequireRole(models.RoleAdmin))

	return s
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		setupMock  func(m *MockTokenParser)
		wantStatus int
		wantBody   string
	}{
		{
			name:       "anonymous",
			setupMock:  func(m *MockTokenParser) {},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:   "user role",
			header: "Bearer user-token",
			setupMock: func(m *MockTokenParser) {
				m.On("ParseAccessToken", "user-token").Return(&models.Principal{UserID: uuid.New(), Role: models.RoleUser}, nil)
			},
			wantStatus: http.StatusForbidden,
		},
		{
			name:   "admin role",
			header: "Bearer admin-token",
			setupMock: func(m *MockTokenParser) {
				m.On("ParseAccessToken", "admin-token").Return(&models.Principal{UserID: uuid.New(), Role: models.RoleAdmin}, nil)
			},
			wantStatus: http.StatusOK,
			wantBody:   "admin",
		},
		{
			name:   "superadmin passes admin check",
			header: "Bearer root-token",
			setupMock: func(m *MockTokenParser) {
				m.On("ParseAccessToken", "root-token").Return(&models.Principal{UserID: uuid.New(), Role: models.RoleSuperadmin}, nil)
			},
			wantStatus: http.StatusOK,
			wantBody:   "superadmin",
		},
		{
			name:   "broken token",
			header: "Bearer garbage",
			setupMock: func(m *MockTokenParser) {
				m.On("ParseAccessToken", "garbage").Return(nil, errors.New("bad signature"))
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "non bearer scheme ignored",
			header:     "Basic dXNlcjpwYXNz",
			setupMock:  func(m *MockTokenParser) {},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens := new(MockTokenParser)
			tt.setupMock(tokens)
			s := newTestServer(t, tokens)

			req := httptest.NewRequest(http.MethodGet, "/probe", nil)
			if tt.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.header)
			}
			rec := httptest.NewRecorder()

			s.Handler().ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			}
			tokens.AssertExpectations(t)
		})
	}
}

func TestBuildRouters_Health(t *testing.T) {
	s := newTestServer(t, new(MockTokenParser))
	s.BuildRouters()

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
