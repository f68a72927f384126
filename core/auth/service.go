// Package auth issues and verifies JWT access/refresh tokens, tracks sessions and
// handles verification codes for email verification and password resets.
package auth

import (
	"context"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/findclassnz/findclass/core"
	"github.com/findclassnz/findclass/core/ratelimit"
	"github.com/findclassnz/findclass/core/user"
)

var (
	nowFunc = time.Now // mockable

	// errors
	ErrInvalidToken         = errors.New("invalid token")
	ErrTokenExpired         = errors.New("token expired")
	ErrTokenRevoked         = errors.New("token revoked")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrAccountDeactivated   = errors.New("account deactivated")
	ErrInvalidCode          = errors.New("invalid or expired code")
	ErrCodeAttemptsExceeded = errors.New("too many failed attempts, request a new code")
	ErrAlreadyVerified      = errors.New("email already verified")
	ErrSessionNotFound      = errors.New("session not found")
)

type (
	// ClientInfo describes the client a session is opened for.
	ClientInfo struct {
		UserAgent string
		IP        string
	}

	TokenPair struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		TokenType    string `json:"token_type"`
		ExpiresIn    int64  `json:"expires_in"` // seconds
	}

	codeEmailData struct {
		Name      string
		Code      string
		ExpiresIn int // minutes
	}

	Service struct {
		tokens       *TokenManager
		sessions     SessionRepository
		blacklist    *Blacklist
		codes        *VerificationStore
		loginLimiter *ratelimit.Limiter
		usrSvc       *user.Service
		mailSvc      core.EmailService
		logger       core.Logger
	}
)

func NewService(
	conf *core.Config,
	usrSvc *user.Service,
	sessions SessionRepository,
	cache core.Cache,
	mailSvc core.EmailService,
	logger core.Logger,
) *Service {
	return &Service{
		tokens:    NewTokenManager(conf),
		sessions:  sessions,
		blacklist: NewBlacklist(cache),
		codes:     NewVerificationStore(conf, cache),
		loginLimiter: ratelimit.New(cache, "login", conf.Auth.LoginMaxAttempts, conf.Auth.LoginWindow,
			"too many failed login attempts"),
		usrSvc:  usrSvc,
		mailSvc: mailSvc,
		logger:  logger,
	}
}

func (svc *Service) Tokens() *TokenManager { return svc.tokens }

func (svc *Service) newSession(ctx context.Context, token string, claims *Claims, client ClientInfo) error {
	sess := Session{
		ID:        uuid.NewString(),
		UserID:    claims.Subject,
		JTI:       claims.Id,
		TokenHash: HashToken(token),
		TokenType: claims.TokenType,
		UserAgent: client.UserAgent,
		ClientIP:  client.IP,
		ExpiresAt: claims.ExpiresAtTime(),
		CreatedAt: nowFunc().UTC(),
	}
	return errors.Wrap(svc.sessions.CreateSession(ctx, sess), "creating session")
}

// issuePair issues a new access/refresh pair and records a session for each token.
func (svc *Service) issuePair(ctx context.Context, usr user.User, client ClientInfo) (TokenPair, error) {
	access, accessClaims, err := svc.tokens.Issue(usr, TokenTypeAccess)
	if err != nil {
		return TokenPair{}, errors.Wrap(err, "issuing access token")
	}
	refresh, refreshClaims, err := svc.tokens.Issue(usr, TokenTypeRefresh)
	if err != nil {
		return TokenPair{}, errors.Wrap(err, "issuing refresh token")
	}
	if err = svc.newSession(ctx, access, accessClaims, client); err != nil {
		return TokenPair{}, err
	}
	if err = svc.newSession(ctx, refresh, refreshClaims, client); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(svc.tokens.AccessTTL() / time.Second),
	}, nil
}

// IssueTokens opens a new session for usr.
func (svc *Service) IssueTokens(ctx context.Context, usr user.User, client ClientInfo) (TokenPair, error) {
	return svc.issuePair(ctx, usr, client)
}

// Register creates the user, sends the email verification code and logs the user in.
func (svc *Service) Register(ctx context.Context, nu user.NewUser, client ClientInfo) (user.User, TokenPair, error) {
	usr, err := svc.usrSvc.Create(ctx, nu)
	if err != nil {
		return user.User{}, TokenPair{}, errors.Wrap(err, "creating user")
	}
	if err = svc.SendVerificationCode(ctx, usr); err != nil {
		svc.logger.Error("sending verification code", err, usr)
	}
	pair, err := svc.issuePair(ctx, usr, client)
	if err != nil {
		return user.User{}, TokenPair{}, err
	}
	return usr, pair, nil
}

// Login authenticates email/password. Attempts are throttled per email and client IP,
// every attempt is counted before the password is checked and a success resets the count.
func (svc *Service) Login(ctx context.Context, email, pwd string, client ClientInfo) (user.User, TokenPair, error) {
	email = core.CleanString(email, true /* lower */)
	throttleID := email + "|" + client.IP
	if err := svc.loginLimiter.Allow(ctx, throttleID); err != nil {
		return user.User{}, TokenPair{}, err
	}

	usr, err := svc.usrSvc.GetByEmail(ctx, email)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, TokenPair{}, ErrAuthenticationFailed
		}
		return user.User{}, TokenPair{}, errors.Wrap(err, "finding user by email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return user.User{}, TokenPair{}, ErrAuthenticationFailed
	}
	if !usr.IsActive {
		return user.User{}, TokenPair{}, ErrAccountDeactivated
	}
	if err = svc.loginLimiter.Reset(ctx, throttleID); err != nil {
		svc.logger.Warn("resetting login throttle", err)
	}

	if usr, err = svc.usrSvc.SetLastLogin(ctx, usr); err != nil {
		return user.User{}, TokenPair{}, errors.Wrap(err, "setting lastLogin")
	}
	pair, err := svc.issuePair(ctx, usr, client)
	if err != nil {
		return user.User{}, TokenPair{}, err
	}
	return usr, pair, nil
}

// Refresh rotates a refresh token: its session gets revoked and a new pair is issued.
// Presenting an already rotated refresh token revokes every session of the user.
func (svc *Service) Refresh(ctx context.Context, refreshToken string, client ClientInfo) (TokenPair, error) {
	claims, err := svc.tokens.Parse(refreshToken, TokenTypeRefresh)
	if err != nil {
		return TokenPair{}, err
	}
	sess, err := svc.sessions.GetSessionByJTI(ctx, claims.Id)
	if err != nil {
		if errors.Cause(err) == ErrSessionNotFound {
			return TokenPair{}, ErrInvalidToken
		}
		return TokenPair{}, errors.Wrap(err, "getting session")
	}
	if !sess.MatchesToken(refreshToken) || sess.UserID != claims.Subject {
		return TokenPair{}, ErrInvalidToken
	}
	if sess.IsRevoked() {
		return TokenPair{}, svc.refreshReused(ctx, sess, client)
	}

	usr, err := svc.usrSvc.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return TokenPair{}, ErrInvalidToken
		}
		return TokenPair{}, errors.Wrap(err, "finding user by ID")
	}
	if !usr.IsActive {
		return TokenPair{}, ErrAccountDeactivated
	}

	// only one concurrent rotation of the same token wins
	rotated, err := svc.sessions.RevokeSession(ctx, claims.Id, nowFunc().UTC())
	if err != nil {
		if errors.Cause(err) == ErrSessionNotFound {
			return TokenPair{}, ErrInvalidToken
		}
		return TokenPair{}, errors.Wrap(err, "revoking session")
	}
	if !rotated {
		return TokenPair{}, svc.refreshReused(ctx, sess, client)
	}
	if err = svc.blacklist.Add(ctx, claims.Id, sess.ExpiresAt); err != nil {
		return TokenPair{}, err
	}
	return svc.issuePair(ctx, usr, client)
}

func (svc *Service) refreshReused(ctx context.Context, sess Session, client ClientInfo) error {
	svc.logger.Warn("refresh token reuse detected, revoking all sessions",
		map[string]interface{}{"user_id": sess.UserID, "session_id": sess.ID, "ip": client.IP})
	if err := svc.LogoutAll(ctx, sess.UserID); err != nil {
		return errors.Wrap(err, "revoking user sessions")
	}
	return ErrTokenRevoked
}

// Authenticate verifies an access token against the blacklist first, then against its session.
// A revoked session found in the database back-fills the blacklist.
func (svc *Service) Authenticate(ctx context.Context, accessToken string) (*Claims, error) {
	claims, err := svc.tokens.Parse(accessToken, TokenTypeAccess)
	if err != nil {
		return nil, err
	}

	blacklisted, err := svc.blacklist.Contains(ctx, claims.Id)
	if err != nil {
		svc.logger.Warn("checking blacklist, falling back to sessions", err)
	} else if blacklisted {
		return nil, ErrTokenRevoked
	}

	sess, err := svc.sessions.GetSessionByJTI(ctx, claims.Id)
	if err != nil {
		if errors.Cause(err) == ErrSessionNotFound {
			return nil, ErrInvalidToken
		}
		return nil, errors.Wrap(err, "getting session")
	}
	if sess.IsRevoked() {
		if err = svc.blacklist.Add(ctx, sess.JTI, sess.ExpiresAt); err != nil {
			svc.logger.Warn("back-filling blacklist", err)
		}
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

func (svc *Service) revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	if _, err := svc.sessions.RevokeSession(ctx, jti, nowFunc().UTC()); err != nil && errors.Cause(err) != ErrSessionNotFound {
		return errors.Wrap(err, "revoking session")
	}
	return svc.blacklist.Add(ctx, jti, expiresAt)
}

// Logout revokes the current access token and, when given, the refresh token of the same user.
func (svc *Service) Logout(ctx context.Context, claims *Claims, refreshToken string) error {
	if err := svc.revoke(ctx, claims.Id, claims.ExpiresAtTime()); err != nil {
		return err
	}
	if refreshToken == "" {
		return nil
	}
	rClaims, err := svc.tokens.Parse(refreshToken, TokenTypeRefresh)
	if err != nil {
		if err == ErrTokenExpired {
			return nil
		}
		return err
	}
	if rClaims.Subject != claims.Subject {
		return ErrInvalidToken
	}
	return svc.revoke(ctx, rClaims.Id, rClaims.ExpiresAtTime())
}

// LogoutAll revokes every active session of a user.
func (svc *Service) LogoutAll(ctx context.Context, userID string) error {
	revoked, err := svc.sessions.RevokeUserSessions(ctx, userID, nowFunc().UTC())
	if err != nil {
		return errors.Wrap(err, "revoking user sessions")
	}
	for _, sess := range revoked {
		if err = svc.blacklist.Add(ctx, sess.JTI, sess.ExpiresAt); err != nil {
			return err
		}
	}
	return nil
}

// Sessions lists the active sessions of a user, flagging the one of currentJTI.
func (svc *Service) Sessions(ctx context.Context, userID, currentJTI string) ([]Session, error) {
	sessions, err := svc.sessions.QueryUserSessions(ctx, userID, nowFunc().UTC())
	if err != nil {
		return nil, errors.Wrap(err, "querying user sessions")
	}
	if sessions == nil {
		sessions = []Session{}
	}
	for i := range sessions {
		sessions[i].Current = sessions[i].JTI == currentJTI
	}
	return sessions, nil
}

func (svc *Service) PurgeExpiredSessions(ctx context.Context) (int, error) {
	n, err := svc.sessions.DeleteExpiredSessions(ctx, nowFunc().UTC())
	return n, errors.Wrap(err, "deleting expired sessions")
}

func (svc *Service) sendCode(usr user.User, code, subject, tmpl, tag string) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      subject,
		Tag:          tag,
		TemplateName: tmpl,
		TemplateData: codeEmailData{
			Name:      usr.Name,
			Code:      code,
			ExpiresIn: int(svc.codes.TTL() / time.Minute),
		},
	})
}

func (svc *Service) SendVerificationCode(ctx context.Context, usr user.User) error {
	if usr.EmailVerified {
		return ErrAlreadyVerified
	}
	code, err := svc.codes.Generate(ctx, PurposeEmailVerification, usr.Email)
	if err != nil {
		return err
	}
	svc.sendCode(usr, code, "Verify your email", "verification_code", "verification")
	return nil
}

func (svc *Service) VerifyEmail(ctx context.Context, usr user.User, code string) (user.User, error) {
	if usr.EmailVerified {
		return usr, ErrAlreadyVerified
	}
	if err := svc.codes.Verify(ctx, PurposeEmailVerification, usr.Email, core.CleanString(code)); err != nil {
		return usr, err
	}
	return svc.usrSvc.MarkEmailVerified(ctx, usr)
}

// RequestPasswordReset emails a reset code. Unknown or deactivated accounts are silently ignored.
func (svc *Service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.usrSvc.GetByEmail(ctx, email)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return nil
		}
		return errors.Wrap(err, "finding user by email")
	}
	if !usr.IsActive {
		return nil
	}
	code, err := svc.codes.Generate(ctx, PurposePasswordReset, usr.Email)
	if err != nil {
		return err
	}
	svc.sendCode(usr, code, "Reset your password", "password_reset_code", "password-reset")
	return nil
}

// ResetPassword sets the new password once the reset code is verified and revokes every session.
func (svc *Service) ResetPassword(ctx context.Context, rp user.ResetUserPassword) error {
	usr, err := svc.usrSvc.GetByEmail(ctx, rp.Email)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return ErrInvalidCode
		}
		return errors.Wrap(err, "finding user by email")
	}
	if err = svc.codes.Verify(ctx, PurposePasswordReset, usr.Email, rp.Code); err != nil {
		return err
	}
	if usr, err = svc.usrSvc.SetPassword(ctx, usr, rp.Password); err != nil {
		return errors.Wrap(err, "setting password")
	}
	if !usr.EmailVerified { // the code proved the ownership of the email
		if _, err = svc.usrSvc.MarkEmailVerified(ctx, usr); err != nil {
			return errors.Wrap(err, "marking email verified")
		}
	}
	return svc.LogoutAll(ctx, usr.ID)
}

// ChangePassword checks the old password, sets the new one, revokes every session and opens a new one.
func (svc *Service) ChangePassword(ctx context.Context, usr user.User, cp user.ChangePassword, client ClientInfo) (TokenPair, error) {
	if err := usr.CheckPassword(cp.OldPassword); err != nil {
		return TokenPair{}, core.NewFieldError("old_password", "incorrect password")
	}
	usr, err := svc.usrSvc.SetPassword(ctx, usr, cp.Password)
	if err != nil {
		return TokenPair{}, errors.Wrap(err, "setting password")
	}
	if err = svc.LogoutAll(ctx, usr.ID); err != nil {
		return TokenPair{}, err
	}
	return svc.issuePair(ctx, usr, client)
}
