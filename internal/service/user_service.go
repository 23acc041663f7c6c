package service

import (
	"context"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/wenwu/saas-platform/wifi-billing-service/internal/apperrors"
	"github.com/wenwu/saas-platform/wifi-billing-service/internal/config"
	"github.com/wenwu/saas-platform/wifi-billing-service/internal/models"
	"golang.org/x/crypto/bcrypt"
)

// UserService handles registration and PIN-based login
type UserService struct {
	cfg   *config.Config
	users UserStore
}

// NewUserService creates a new user service
func NewUserService(cfg *config.Config, users UserStore) *UserService {
	return &UserService{cfg: cfg, users: users}
}

// Register creates a new subscriber account. Username and phone number
// uniqueness come back as conflicts from the store's unique constraints.
func (s *UserService) Register(ctx context.Context, username, phoneNumber, pin string) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperrors.NewInternal("hash pin")
	}

	user := &models.User{
		ID:          uuid.New().String(),
		Username:    username,
		PhoneNumber: phoneNumber,
		PINHash:     string(hash),
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	// 日志脱敏: 不记录手机号
	log.Printf("[User] Registered user %s (username=%s)", user.ID, username)
	return user, nil
}

// Login verifies the PIN and issues a signed access token. The error never
// reveals whether the username or the PIN was wrong.
func (s *UserService) Login(ctx context.Context, username, pin string) (string, int, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return "", 0, apperrors.NewUnauthorized("incorrect username or PIN")
		}
		return "", 0, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PINHash), []byte(pin)) != nil {
		return "", 0, apperrors.NewUnauthorized("incorrect username or PIN")
	}

	expiry := time.Duration(s.cfg.JWT.ExpiryHours) * time.Hour
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"uid":      user.ID,
		"sub":      user.ID,
		"username": user.Username,
		"iat":      now.Unix(),
		"exp":      now.Add(expiry).Unix(),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWT.SecretKey))
	if err != nil {
		return "", 0, apperrors.NewInternal("sign token")
	}
	return token, int(expiry.Seconds()), nil
}

// GetProfile retrieves a user by ID
func (s *UserService) GetProfile(ctx context.Context, userID string) (*models.User, error) {
	return s.users.GetByID(ctx, userID)
}

// GetByPhone resolves a subscriber from the phone number the hotspot
// gateway sees
func (s *UserService) GetByPhone(ctx context.Context, phoneNumber string) (*models.User, error) {
	return s.users.GetByPhone(ctx, phoneNumber)
}
