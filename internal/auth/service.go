// Package auth is the identity and session service: password and Google
// sign-in, JWT access and refresh tokens backed by stored sessions, and
// single-use password reset tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/siteselect/internal/config"
	"github.com/sells-group/siteselect/internal/model"
	"github.com/sells-group/siteselect/internal/store"
)

// Sentinel errors. Callers map them to HTTP statuses with eris.Is.
var (
	ErrInvalidCredentials = eris.New("auth: incorrect email or password")
	ErrInvalidToken       = eris.New("auth: invalid token")
	ErrInactiveUser       = eris.New("auth: inactive user")
	ErrEmailTaken         = eris.New("auth: email already registered")
	ErrUsernameTaken      = eris.New("auth: username already taken")
	ErrInvalidResetToken  = eris.New("auth: invalid or expired reset token")
	ErrGoogleDisabled     = eris.New("auth: google sign-in not configured")
)

// TokenTypeBearer is the token_type reported to clients.
const TokenTypeBearer = "bearer"

// AccountStore is the persistence the service needs.
type AccountStore interface {
	CreateUser(ctx context.Context, u *model.User) error
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	UpdateUser(ctx context.Context, u *model.User) error

	CreateSession(ctx context.Context, s *model.Session) error
	GetActiveSession(ctx context.Context, userID int64, sessionToken string, now time.Time) (*model.Session, error)
	TouchSession(ctx context.Context, id int64, at time.Time) error
	DeactivateSessions(ctx context.Context, userID int64, sessionToken string) (int64, error)

	CreateResetToken(ctx context.Context, t *model.PasswordResetToken) error
	GetValidResetToken(ctx context.Context, token string, now time.Time) (*model.PasswordResetToken, error)
	ConsumeResetToken(ctx context.Context, tokenID, userID int64, hashedPassword string) error
}

// Settings holds token lifetimes and hashing cost.
type Settings struct {
	Secret      string
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
	ResetTTL    time.Duration
	BcryptCost  int
	FrontendURL string
}

// SettingsFromConfig converts the auth config section.
func SettingsFromConfig(c config.AuthConfig) Settings {
	return Settings{
		Secret:      c.JWTSecret,
		AccessTTL:   time.Duration(c.AccessTTLMinutes) * time.Minute,
		RefreshTTL:  time.Duration(c.RefreshTTLDays) * 24 * time.Hour,
		ResetTTL:    time.Duration(c.ResetTTLMinutes) * time.Minute,
		BcryptCost:  c.BcryptCost,
		FrontendURL: c.FrontendURL,
	}
}

func (s *Settings) applyDefaults() {
	if s.AccessTTL <= 0 {
		s.AccessTTL = 30 * time.Minute
	}
	if s.RefreshTTL <= 0 {
		s.RefreshTTL = 7 * 24 * time.Hour
	}
	if s.ResetTTL <= 0 {
		s.ResetTTL = time.Hour
	}
	if s.FrontendURL == "" {
		s.FrontendURL = "http://localhost:3001"
	}
}

// Session is the token pair handed to a client after sign-in.
type Session struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token,omitempty"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int         `json:"expires_in"`
	User         *model.User `json:"user,omitempty"`
}

// Registration is a sign-up request.
type Registration struct {
	Email           string  `json:"email"`
	Username        *string `json:"username"`
	FullName        string  `json:"full_name"`
	Password        string  `json:"password"`
	ConfirmPassword string  `json:"confirm_password"`
}

// ProfileUpdate carries the editable profile fields. Nil fields are left
// unchanged.
type ProfileUpdate struct {
	Username       *string `json:"username"`
	FullName       *string `json:"full_name"`
	ProfilePicture *string `json:"profile_picture"`
}

// Service implements the account flows.
type Service struct {
	store    AccountStore
	tokens   *Tokens
	settings Settings
	mailer   Mailer
	google   IdentityProvider
	now      func() time.Time
	log      *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithMailer sets the reset email sender.
func WithMailer(m Mailer) Option {
	return func(s *Service) { s.mailer = m }
}

// WithGoogle enables Google sign-in.
func WithGoogle(p IdentityProvider) Option {
	return func(s *Service) { s.google = p }
}

// WithClock replaces time.Now for sessions, tokens and resets.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates the account service.
func NewService(st AccountStore, settings Settings, opts ...Option) *Service {
	settings.applyDefaults()
	s := &Service{
		store:    st,
		settings: settings,
		now:      time.Now,
		log:      zap.L().With(zap.String("component", "auth")),
	}
	for _, o := range opts {
		o(s)
	}
	s.tokens = NewTokens(settings.Secret, settings.AccessTTL, settings.RefreshTTL)
	s.tokens.now = s.now
	return s
}

// GoogleEnabled reports whether Google sign-in is configured.
func (s *Service) GoogleEnabled() bool { return s.google != nil }

// Register creates an email account and signs it in.
func (s *Service) Register(ctx context.Context, r Registration) (*Session, error) {
	email, err := normalizeEmail(r.Email)
	if err != nil {
		return nil, err
	}
	if err := ValidatePassword(r.Password, r.ConfirmPassword); err != nil {
		return nil, err
	}

	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !eris.Is(err, store.ErrNotFound) {
		return nil, eris.Wrap(err, "auth: register: lookup email")
	}

	username := trimmedOrNil(r.Username)
	if username != nil {
		taken, err := s.store.UsernameExists(ctx, *username)
		if err != nil {
			return nil, eris.Wrap(err, "auth: register: lookup username")
		}
		if taken {
			return nil, ErrUsernameTaken
		}
	}

	hash, err := HashPassword(r.Password, s.settings.BcryptCost)
	if err != nil {
		return nil, err
	}

	u := &model.User{
		Email:          email,
		Username:       username,
		FullName:       strings.TrimSpace(r.FullName),
		HashedPassword: hash,
		IsActive:       true,
		Role:           model.RoleBusinessUser,
		AuthProvider:   model.ProviderEmail,
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, eris.Wrap(err, "auth: register: create user")
	}

	s.log.Info("user registered", zap.Int64("user_id", u.ID))
	return s.startSession(ctx, u)
}

// Login verifies an email and password and opens a session.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	u, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, eris.Wrap(err, "auth: login: lookup user")
	}
	if !CheckPassword(u.HashedPassword, password) {
		return nil, ErrInvalidCredentials
	}
	if !u.IsActive {
		return nil, ErrInactiveUser
	}

	if err := s.markLogin(ctx, u); err != nil {
		return nil, err
	}
	return s.startSession(ctx, u)
}

// Refresh issues a new access token for a live session.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	claims, err := s.tokens.Parse(refreshToken, TokenRefresh)
	if err != nil {
		return nil, err
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, err
	}

	sess, err := s.activeSession(ctx, userID, claims.SessionToken)
	if err != nil {
		return nil, err
	}

	access, err := s.tokens.Issue(userID, sess.SessionToken, TokenAccess)
	if err != nil {
		return nil, err
	}
	return &Session{
		AccessToken: access,
		TokenType:   TokenTypeBearer,
		ExpiresIn:   int(s.settings.AccessTTL.Seconds()),
	}, nil
}

// Authenticate resolves an access token to its active user and refreshes the
// session's activity time. It returns the session token the access token
// was issued for.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*model.User, string, error) {
	claims, err := s.tokens.Parse(accessToken, TokenAccess)
	if err != nil {
		return nil, "", err
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, "", err
	}

	u, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			return nil, "", ErrInvalidToken
		}
		return nil, "", eris.Wrap(err, "auth: authenticate: lookup user")
	}
	if !u.IsActive {
		return nil, "", ErrInactiveUser
	}

	if _, err := s.activeSession(ctx, userID, claims.SessionToken); err != nil {
		return nil, "", err
	}
	return u, claims.SessionToken, nil
}

// activeSession loads a live session and records activity on it.
func (s *Service) activeSession(ctx context.Context, userID int64, sessionToken string) (*model.Session, error) {
	if sessionToken == "" {
		return nil, ErrInvalidToken
	}
	now := s.now().UTC()
	sess, err := s.store.GetActiveSession(ctx, userID, sessionToken, now)
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, eris.Wrap(err, "auth: lookup session")
	}
	if err := s.store.TouchSession(ctx, sess.ID, now); err != nil {
		s.log.Warn("auth: touch session failed", zap.Int64("session_id", sess.ID), zap.Error(err))
	}
	return sess, nil
}

// Logout ends one session, or every session of the user when sessionToken
// is empty.
func (s *Service) Logout(ctx context.Context, userID int64, sessionToken string) error {
	n, err := s.store.DeactivateSessions(ctx, userID, sessionToken)
	if err != nil {
		return eris.Wrap(err, "auth: logout")
	}
	s.log.Debug("sessions ended", zap.Int64("user_id", userID), zap.Int64("count", n))
	return nil
}

// ForgotPassword issues a reset token and mails the link. It returns nil for
// unknown emails so callers cannot tell which addresses exist; mail
// delivery failures are logged, not returned.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil
	}

	u, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			return nil
		}
		return eris.Wrap(err, "auth: forgot password: lookup user")
	}

	t := &model.PasswordResetToken{
		UserID:    u.ID,
		Token:     uuid.NewString(),
		ExpiresAt: s.now().UTC().Add(s.settings.ResetTTL),
	}
	if err := s.store.CreateResetToken(ctx, t); err != nil {
		return eris.Wrap(err, "auth: forgot password: store token")
	}

	if s.mailer == nil {
		s.log.Warn("auth: no mailer configured, reset email not sent", zap.Int64("user_id", u.ID))
		return nil
	}
	if err := s.mailer.SendPasswordReset(ctx, u.Email, s.resetURL(t.Token)); err != nil {
		s.log.Warn("auth: reset email not sent", zap.Int64("user_id", u.ID), zap.Error(err))
	}
	return nil
}

func (s *Service) resetURL(token string) string {
	return strings.TrimRight(s.settings.FrontendURL, "/") + "/reset-password?token=" + url.QueryEscape(token)
}

// ResetPassword consumes a reset token and sets the new password.
func (s *Service) ResetPassword(ctx context.Context, token, password, confirm string) error {
	if err := ValidatePassword(password, confirm); err != nil {
		return err
	}

	t, err := s.store.GetValidResetToken(ctx, token, s.now().UTC())
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			return ErrInvalidResetToken
		}
		return eris.Wrap(err, "auth: reset password: lookup token")
	}

	hash, err := HashPassword(password, s.settings.BcryptCost)
	if err != nil {
		return err
	}
	if err := s.store.ConsumeResetToken(ctx, t.ID, t.UserID, hash); err != nil {
		if eris.Is(err, store.ErrNotFound) {
			return ErrInvalidResetToken
		}
		return eris.Wrap(err, "auth: reset password")
	}

	s.log.Info("password reset", zap.Int64("user_id", t.UserID))
	return nil
}

// UpdateProfile applies the non-nil fields of p to the user.
func (s *Service) UpdateProfile(ctx context.Context, u *model.User, p ProfileUpdate) (*model.User, error) {
	updated := *u
	if p.Username != nil {
		name := trimmedOrNil(p.Username)
		if name != nil && (u.Username == nil || *u.Username != *name) {
			taken, err := s.store.UsernameExists(ctx, *name)
			if err != nil {
				return nil, eris.Wrap(err, "auth: update profile: lookup username")
			}
			if taken {
				return nil, ErrUsernameTaken
			}
		}
		updated.Username = name
	}
	if p.FullName != nil {
		updated.FullName = strings.TrimSpace(*p.FullName)
	}
	if p.ProfilePicture != nil {
		updated.ProfilePicture = strings.TrimSpace(*p.ProfilePicture)
	}

	if err := s.store.UpdateUser(ctx, &updated); err != nil {
		return nil, eris.Wrap(err, "auth: update profile")
	}
	return &updated, nil
}

// GoogleAuthURL returns the consent page URL with a signed state value.
func (s *Service) GoogleAuthURL() (string, error) {
	if s.google == nil {
		return "", ErrGoogleDisabled
	}
	state, err := s.tokens.IssueState()
	if err != nil {
		return "", err
	}
	return s.google.AuthURL(state), nil
}

// GoogleLogin completes the authorization-code flow: it signs in the user
// with the profile's email, creating a pre-verified account on first use.
// A non-empty state must be one issued by GoogleAuthURL.
func (s *Service) GoogleLogin(ctx context.Context, code, state string) (*Session, error) {
	if s.google == nil {
		return nil, ErrGoogleDisabled
	}
	if state != "" {
		if err := s.tokens.VerifyState(state); err != nil {
			return nil, err
		}
	}

	id, err := s.google.Identity(ctx, code)
	if err != nil {
		return nil, err
	}
	email, err := normalizeEmail(id.Email)
	if err != nil {
		return nil, err
	}

	u, err := s.store.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		if !u.IsActive {
			return nil, ErrInactiveUser
		}
		if err := s.markLogin(ctx, u); err != nil {
			return nil, err
		}
	case eris.Is(err, store.ErrNotFound):
		u, err = s.createGoogleUser(ctx, email, id)
		if err != nil {
			return nil, err
		}
	default:
		return nil, eris.Wrap(err, "auth: google login: lookup user")
	}

	return s.startSession(ctx, u)
}

func (s *Service) createGoogleUser(ctx context.Context, email string, id *GoogleIdentity) (*model.User, error) {
	username, err := s.uniqueUsername(ctx, strings.SplitN(email, "@", 2)[0])
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	u := &model.User{
		Email:          email,
		Username:       &username,
		FullName:       id.Name,
		IsActive:       true,
		IsVerified:     true,
		Role:           model.RoleBusinessUser,
		AuthProvider:   model.ProviderGoogle,
		ProviderID:     id.ID,
		ProfilePicture: id.Picture,
		LastLogin:      &now,
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, eris.Wrap(err, "auth: google login: create user")
	}
	s.log.Info("user registered", zap.Int64("user_id", u.ID), zap.String("provider", string(model.ProviderGoogle)))
	return u, nil
}

// uniqueUsername returns base, or base followed by the first counter from 1
// that is not taken.
func (s *Service) uniqueUsername(ctx context.Context, base string) (string, error) {
	candidate := base
	for i := 1; ; i++ {
		taken, err := s.store.UsernameExists(ctx, candidate)
		if err != nil {
			return "", eris.Wrap(err, "auth: lookup username")
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s%d", base, i)
	}
}

func (s *Service) markLogin(ctx context.Context, u *model.User) error {
	now := s.now().UTC()
	u.LastLogin = &now
	if err := s.store.UpdateUser(ctx, u); err != nil {
		return eris.Wrap(err, "auth: record login")
	}
	return nil
}

func (s *Service) startSession(ctx context.Context, u *model.User) (*Session, error) {
	sess := &model.Session{
		UserID:       u.ID,
		SessionToken: uuid.NewString(),
		RefreshToken: uuid.NewString(),
		ExpiresAt:    s.now().UTC().Add(s.settings.RefreshTTL),
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, eris.Wrap(err, "auth: create session")
	}

	access, err := s.tokens.Issue(u.ID, sess.SessionToken, TokenAccess)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.Issue(u.ID, sess.SessionToken, TokenRefresh)
	if err != nil {
		return nil, err
	}

	return &Session{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    TokenTypeBearer,
		ExpiresIn:    int(s.settings.AccessTTL.Seconds()),
		User:         u,
	}, nil
}

// normalizeEmail validates a bare address and lowercases it.
func normalizeEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw {
		return "", invalid("A valid email address is required")
	}
	return strings.ToLower(addr.Address), nil
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// IsValidation reports whether err is a user-facing input problem.
func IsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
