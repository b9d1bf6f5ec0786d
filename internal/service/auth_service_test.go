package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"diabetesrisk/internal/auth"
	apperrors "diabetesrisk/internal/errors"
	"diabetesrisk/internal/model"
)

func TestAuthService_Register(t *testing.T) {
	tests := []struct {
		name          string
		username      string
		password      string
		setupMock     func(*MockUserRepository)
		expectedError error
	}{
		{
			name:     "successful registration",
			username: "alice",
			password: "password123",
			setupMock: func(m *MockUserRepository) {
				m.On("FindByUsername", mock.Anything, "alice").Return(nil, apperrors.ErrNotFound)
				m.On("Create", mock.Anything, mock.AnythingOfType("*model.User")).Return(nil)
			},
		},
		{
			name:     "user already exists",
			username: "bob",
			password: "password123",
			setupMock: func(m *MockUserRepository) {
				m.On("FindByUsername", mock.Anything, "bob").Return(&model.User{ID: 2, Username: "bob"}, nil)
			},
			expectedError: ErrUserAlreadyExists,
		},
		{
			name:     "concurrent registration loses the race",
			username: "carol",
			password: "password123",
			setupMock: func(m *MockUserRepository) {
				m.On("FindByUsername", mock.Anything, "carol").Return(nil, apperrors.ErrNotFound)
				m.On("Create", mock.Anything, mock.AnythingOfType("*model.User")).Return(apperrors.ErrUserAlreadyExists)
			},
			expectedError: ErrUserAlreadyExists,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockUserRepository)
			tt.setupMock(mockRepo)

			service := NewAuthService(mockRepo, auth.NewJWTService("test-secret"), new(MockTokenStore))
			user, err := service.Register(context.Background(), tt.username, tt.password)

			if tt.expectedError != nil {
				assert.ErrorIs(t, err, tt.expectedError)
				assert.Nil(t, user)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.username, user.Username)
				assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(tt.password)))
			}

			mockRepo.AssertExpectations(t)
		})
	}
}

func TestAuthService_Register_RepositoryFailure(t *testing.T) {
	mockRepo := new(MockUserRepository)
	mockRepo.On("FindByUsername", mock.Anything, "alice").Return(nil, errors.New("db down"))

	service := NewAuthService(mockRepo, auth.NewJWTService("test-secret"), new(MockTokenStore))
	_, err := service.Register(context.Background(), "alice", "password123")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrUserAlreadyExists)
}

func TestAuthService_Login(t *testing.T) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)
	alice := &model.User{ID: 7, Username: "alice", PasswordHash: string(hashed)}

	tests := []struct {
		name          string
		username      string
		password      string
		setupMock     func(*MockUserRepository, *MockTokenStore)
		expectedError error
	}{
		{
			name:     "successful login",
			username: "alice",
			password: "password123",
			setupMock: func(mRepo *MockUserRepository, mToken *MockTokenStore) {
				mRepo.On("FindByUsername", mock.Anything, "alice").Return(alice, nil)
				mToken.On("StoreRefreshToken", mock.Anything, mock.Anything, uint(7), "alice", auth.RefreshTokenExpiry).Return(nil)
			},
		},
		{
			name:     "unknown user",
			username: "nobody",
			password: "password123",
			setupMock: func(mRepo *MockUserRepository, mToken *MockTokenStore) {
				mRepo.On("FindByUsername", mock.Anything, "nobody").Return(nil, apperrors.ErrNotFound)
			},
			expectedError: ErrInvalidCredentials,
		},
		{
			name:     "wrong password",
			username: "alice",
			password: "wrong",
			setupMock: func(mRepo *MockUserRepository, mToken *MockTokenStore) {
				mRepo.On("FindByUsername", mock.Anything, "alice").Return(alice, nil)
			},
			expectedError: ErrInvalidCredentials,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockUserRepository)
			mockTokenStore := new(MockTokenStore)
			tt.setupMock(mockRepo, mockTokenStore)

			jwtService := auth.NewJWTService("test-secret")
			service := NewAuthService(mockRepo, jwtService, mockTokenStore)

			accessToken, refreshToken, user, err := service.Login(context.Background(), tt.username, tt.password)

			if tt.expectedError != nil {
				assert.ErrorIs(t, err, tt.expectedError)
				assert.Empty(t, accessToken)
				assert.Empty(t, refreshToken)
				assert.Nil(t, user)
			} else {
				require.NoError(t, err)
				claims, err := jwtService.ValidateToken(accessToken)
				require.NoError(t, err)
				assert.Equal(t, uint(7), claims.UserID)
				assert.Equal(t, "alice", claims.Username)
				assert.NotEmpty(t, refreshToken)
				assert.Equal(t, alice, user)
			}

			mockRepo.AssertExpectations(t)
			mockTokenStore.AssertExpectations(t)
		})
	}
}

func TestAuthService_RefreshToken(t *testing.T) {
	jwtService := auth.NewJWTService("test-secret")
	tokenID, refresh, err := jwtService.GenerateRefreshToken(7, "alice")
	require.NoError(t, err)
	access, err := jwtService.GenerateAccessToken(7, "alice")
	require.NoError(t, err)

	tests := []struct {
		name          string
		token         string
		setupMock     func(*MockTokenStore)
		expectedError error
	}{
		{
			name:  "valid refresh token",
			token: refresh,
			setupMock: func(m *MockTokenStore) {
				m.On("GetRefreshToken", mock.Anything, tokenID).Return(uint(7), "alice", nil)
			},
		},
		{
			name:  "revoked",
			token: refresh,
			setupMock: func(m *MockTokenStore) {
				m.On("GetRefreshToken", mock.Anything, tokenID).Return(uint(0), "", auth.ErrTokenNotFound)
			},
			expectedError: ErrInvalidRefreshToken,
		},
		{
			name:  "stored identity differs",
			token: refresh,
			setupMock: func(m *MockTokenStore) {
				m.On("GetRefreshToken", mock.Anything, tokenID).Return(uint(8), "mallory", nil)
			},
			expectedError: ErrInvalidRefreshToken,
		},
		{
			name:          "access token is not a refresh token",
			token:         access,
			setupMock:     func(*MockTokenStore) {},
			expectedError: ErrInvalidRefreshToken,
		},
		{
			name:          "garbage",
			token:         "garbage",
			setupMock:     func(*MockTokenStore) {},
			expectedError: ErrInvalidRefreshToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockTokenStore := new(MockTokenStore)
			tt.setupMock(mockTokenStore)

			service := NewAuthService(new(MockUserRepository), jwtService, mockTokenStore)
			got, err := service.RefreshToken(context.Background(), tt.token)

			if tt.expectedError != nil {
				assert.ErrorIs(t, err, tt.expectedError)
				assert.Empty(t, got)
			} else {
				require.NoError(t, err)
				claims, err := jwtService.ValidateToken(got)
				require.NoError(t, err)
				assert.Equal(t, "alice", claims.Username)
				assert.Equal(t, auth.TokenTypeAccess, claims.Type)
			}
			mockTokenStore.AssertExpectations(t)
		})
	}
}

func TestAuthService_Logout(t *testing.T) {
	jwtService := auth.NewJWTService("test-secret")
	tokenID, refresh, err := jwtService.GenerateRefreshToken(7, "alice")
	require.NoError(t, err)
	access, err := jwtService.GenerateAccessToken(7, "alice")
	require.NoError(t, err)

	mockTokenStore := new(MockTokenStore)
	mockTokenStore.On("DeleteRefreshToken", mock.Anything, tokenID).Return(nil)

	service := NewAuthService(new(MockUserRepository), jwtService, mockTokenStore)
	assert.NoError(t, service.Logout(context.Background(), refresh))
	assert.ErrorIs(t, service.Logout(context.Background(), "garbage"), ErrInvalidRefreshToken)
	assert.ErrorIs(t, service.Logout(context.Background(), access), ErrInvalidRefreshToken)
	mockTokenStore.AssertExpectations(t)
}
