package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/GLINCKER/glinrdock/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockStore implements Store interface for testing
type MockStore struct {
	mock.Mock
}

func (m *MockStore) VerifyToken(ctx context.Context, plain string) (string, error) {
	args := m.Called(ctx, plain)
	return args.String(0), args.Error(1)
}

func (m *MockStore) TouchToken(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

func (m *MockStore) TokenCount(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockStore) CreateToken(ctx context.Context, name, plain, role string) (store.Token, error) {
	args := m.Called(ctx, name, plain, role)
	return args.Get(0).(store.Token), args.Error(1)
}

func (m *MockStore) GetTokenByName(ctx context.Context, name string) (store.Token, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(store.Token), args.Error(1)
}

func TestAuthService_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("ValidToken", func(t *testing.T) {
		mockStore := &MockStore{}
		token := store.Token{Name: "test-user", Role: store.RoleUser}
		mockStore.On("VerifyToken", mock.Anything, "valid-token").Return("test-user", nil)
		mockStore.On("GetTokenByName", mock.Anything, "test-user").Return(token, nil)
		mockStore.On("TouchToken", mock.Anything, "test-user").Return(nil)

		authService := NewAuthService(mockStore)
		middleware := authService.Middleware()

		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request, _ = http.NewRequest("GET", "/test", nil)
		c.Request.Header.Set("Authorization", "Bearer valid-token")

		var called bool
		testHandler := func(c *gin.Context) {
			called = true
			tokenName, exists := c.Get("token_name")
			assert.True(t, exists)
			assert.Equal(t, "test-user", tokenName)
			tokenRole, exists := c.Get("token_role")
			assert.True(t, exists)
			assert.Equal(t, store.RoleUser, tokenRole)
		}

		middleware(c)
		if !c.IsAborted() {
			testHandler(c)
		}

		assert.True(t, called)
		assert.Equal(t, http.StatusOK, w.Code)
		mockStore.AssertExpectations(t)
	})

	t.Run("MissingToken", func(t *testing.T) {
		mockStore := &MockStore{}
		authService := NewAuthService(mockStore)
		middleware := authService.Middleware()

		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request, _ = http.NewRequest("GET", "/test", nil)

		middleware(c)

		assert.True(t, c.IsAborted())
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "missing authentication")
	})

	t.Run("InvalidToken", func(t *testing.T) {
		mockStore := &MockStore{}
		mockStore.On("VerifyToken", mock.Anything, "invalid-token").Return("", assert.AnError)

		authService := NewAuthService(mockStore)
		middleware := authService.Middleware()

		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request, _ = http.NewRequest("GET", "/test", nil)
		c.Request.Header.Set("Authorization", "Bearer invalid-token")

		middleware(c)

		assert.True(t, c.IsAborted())
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "invalid token")
		mockStore.AssertExpectations(t)
	})
}

func TestAuthService_BootstrapAdminToken(t *testing.T) {
	ctx := context.Background()

	t.Run("NoAdminTokenSet", func(t *testing.T) {
		mockStore := &MockStore{}
		authService := NewAuthService(mockStore)

		err := authService.BootstrapAdminToken(ctx, "")
		assert.NoError(t, err)
		mockStore.AssertNotCalled(t, "TokenCount")
	})

	t.Run("TokensAlreadyExist", func(t *testing.T) {
		mockStore := &MockStore{}
		mockStore.On("TokenCount", ctx).Return(5, nil)

		authService := NewAuthService(mockStore)

		err := authService.BootstrapAdminToken(ctx, "admin-secret")
		assert.NoError(t, err)
		mockStore.AssertNotCalled(t, "CreateToken")
		mockStore.AssertExpectations(t)
	})

	t.Run("CreateAdminToken", func(t *testing.T) {
		mockStore := &MockStore{}
		mockStore.On("TokenCount", ctx).Return(0, nil)
		expectedToken := store.Token{ID: 1, Name: "admin", Role: store.RoleAdmin}
		mockStore.On("CreateToken", ctx, "admin", "admin-secret", store.RoleAdmin).Return(expectedToken, nil)

		authService := NewAuthService(mockStore)

		err := authService.BootstrapAdminToken(ctx, "admin-secret")
		require.NoError(t, err)
		mockStore.AssertExpectations(t)
	})
}

func setupTestRouter(authService *AuthService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	r.GET("/public", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "public"})
	})

	protected := r.Group("/protected")
	protected.Use(authService.Middleware())
	{
		protected.GET("/user", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "user access", "role": CurrentRole(c)})
		})
		protected.POST("/admin", authService.RequireAdminRole(), func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "admin access", "role": CurrentRole(c)})
		})
	}

	return r
}

func TestAuthService_RequireAdminRole(t *testing.T) {
	tests := []struct {
		userRole   string
		endpoint   string
		expectCode int
		desc       string
	}{
		{store.RoleAdmin, "/protected/admin", http.StatusOK, "admin accessing admin endpoint"},
		{store.RoleUser, "/protected/admin", http.StatusForbidden, "user accessing admin endpoint"},
	}

	for _, test := range tests {
		t.Run(test.desc, func(t *testing.T) {
			mockStore := &MockStore{}
			token := store.Token{Name: "a-token", Role: test.userRole}

			mockStore.On("VerifyToken", mock.Anything, "a-token").Return("a-token", nil)
			mockStore.On("GetTokenByName", mock.Anything, "a-token").Return(token, nil)
			mockStore.On("TouchToken", mock.Anything, "a-token").Return(nil)

			authService := NewAuthService(mockStore)
			router := setupTestRouter(authService)

			req := httptest.NewRequest(http.MethodPost, test.endpoint, nil)
			req.Header.Set("Authorization", "Bearer a-token")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, test.expectCode, w.Code)
			mockStore.AssertExpectations(t)
		})
	}
}

func TestCurrentRole(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("returns role when set", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Set("token_role", store.RoleAdmin)

		role := CurrentRole(c)
		assert.Equal(t, store.RoleAdmin, role)
	})

	t.Run("returns empty string when not set", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())

		role := CurrentRole(c)
		assert.Equal(t, "", role)
	})
}

func TestCurrentTokenName(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("returns token name when set", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Set("token_name", "test-token")

		name := CurrentTokenName(c)
		assert.Equal(t, "test-token", name)
	})

	t.Run("returns empty string when not set", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())

		name := CurrentTokenName(c)
		assert.Equal(t, "", name)
	})
}
