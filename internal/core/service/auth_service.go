package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/zaphost/gateway/internal/core/domain"
	"github.com/zaphost/gateway/internal/core/ports"
)

const (
	defaultTokenTTL     = 7 * 24 * time.Hour
	defaultTrialPeriod  = 7 * 24 * time.Hour
	defaultPasswordCost = 12
)

// AuthOptions tunes token lifetime, trial length and hashing cost. Zero values
// fall back to the defaults above.
type AuthOptions struct {
	JWTSecret    string
	TokenTTL     time.Duration
	TrialPeriod  time.Duration
	PasswordCost int
}

// identityClaims is the payload of a dashboard identity token.
type identityClaims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// AuthService implements registration, login, plan selection and identity
// token issuance.
type AuthService struct {
	users ports.UserRepository
	txns  ports.TransactionRepository
	opts  AuthOptions
	now   func() time.Time
	log   zerolog.Logger
}

func NewAuthService(users ports.UserRepository, txns ports.TransactionRepository, opts AuthOptions, log zerolog.Logger) *AuthService {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = defaultTokenTTL
	}
	if opts.TrialPeriod <= 0 {
		opts.TrialPeriod = defaultTrialPeriod
	}
	if opts.PasswordCost < bcrypt.MinCost {
		opts.PasswordCost = defaultPasswordCost
	}
	return &AuthService{
		users: users,
		txns:  txns,
		opts:  opts,
		now:   func() time.Time { return time.Now().UTC() },
		log:   log,
	}
}

func (s *AuthService) Register(ctx context.Context, in ports.RegisterInput) (string, *domain.User, error) {
	email := strings.TrimSpace(in.Email)
	if email == "" || in.Password == "" || strings.TrimSpace(in.Name) == "" {
		return "", nil, domain.ErrInvalidCredentials
	}

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return "", nil, domain.ErrUserExists
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return "", nil, fmt.Errorf("register: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.opts.PasswordCost)
	if err != nil {
		return "", nil, fmt.Errorf("register: hash password: %w", err)
	}

	now := s.now()
	trialEnds := now.Add(s.opts.TrialPeriod)
	user := &domain.User{
		Name:         strings.TrimSpace(in.Name),
		Email:        email,
		PasswordHash: string(hash),
		ProjectType:  in.ProjectType,
		Plan:         domain.PlanFree,
		SelectedPlan: domain.SelectedFree,
		TrialEndsAt:  &trialEnds,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	created, err := s.users.Create(ctx, user)
	if err != nil {
		return "", nil, err
	}

	token, err := s.issueToken(created.ID)
	if err != nil {
		return "", nil, err
	}
	s.log.Info().Str("user_id", created.ID).Msg("user registered")
	return token, created, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (string, *domain.User, error) {
	if email == "" || password == "" {
		return "", nil, domain.ErrInvalidCredentials
	}

	user, err := s.users.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return "", nil, domain.ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("login: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", nil, domain.ErrInvalidCredentials
	}

	token, err := s.issueToken(user.ID)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// SelectPlan applies a plan choice and restarts the access window from now.
func (s *AuthService) SelectPlan(ctx context.Context, userID string, selected domain.SelectedPlan) (*domain.User, error) {
	plan, trialEnds, err := selected.Terms(s.now())
	if err != nil {
		return nil, err
	}
	if err := s.users.UpdatePlan(ctx, userID, plan, selected, trialEnds); err != nil {
		return nil, fmt.Errorf("select plan: %w", err)
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("select plan: %w", err)
	}
	s.log.Info().Str("user_id", userID).Str("plan", string(selected)).Msg("plan selected")
	return user, nil
}

// VerifyPayment records a payment callback. A successful payment upgrades the
// user to the paid tier.
func (s *AuthService) VerifyPayment(ctx context.Context, in ports.PaymentResult) error {
	now := s.now()
	if !in.Success {
		if err := s.txns.Fail(ctx, in.TransactionID, now); err != nil {
			return fmt.Errorf("verify payment: %w", err)
		}
		return nil
	}

	if err := s.users.MarkPaid(ctx, in.UserID); err != nil {
		return fmt.Errorf("verify payment: %w", err)
	}
	if err := s.txns.Complete(ctx, in.TransactionID, now); err != nil {
		s.log.Warn().Err(err).Str("transaction_id", in.TransactionID).Msg("failed to complete transaction")
	}
	s.log.Info().Str("user_id", in.UserID).Msg("payment verified")
	return nil
}

// ParseIdentityToken checks signature and expiry and returns the user id.
// It does not apply the plan gate.
func (s *AuthService) ParseIdentityToken(token string) (string, error) {
	claims := &identityClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return []byte(s.opts.JWTSecret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid || claims.UserID == "" {
		return "", domain.ErrInvalidToken
	}
	return claims.UserID, nil
}

func (s *AuthService) issueToken(userID string) (string, error) {
	now := s.now()
	claims := identityClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.opts.TokenTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.opts.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
