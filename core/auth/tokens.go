package auth

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/findclassnz/findclass/core"
	"github.com/findclassnz/findclass/core/user"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

var signingMethod = jwt.SigningMethodHS256

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	TokenType string `json:"typ"`
}

// Valid checks the time based claims against nowFunc; exp is required.
func (c *Claims) Valid() error {
	now := nowFunc().Unix()
	vErr := new(jwt.ValidationError)
	if !c.VerifyExpiresAt(now, true) {
		vErr.Inner = errors.New("token is expired")
		vErr.Errors |= jwt.ValidationErrorExpired
	}
	if !c.VerifyIssuedAt(now, false) {
		vErr.Inner = errors.New("token used before issued")
		vErr.Errors |= jwt.ValidationErrorIssuedAt
	}
	if !c.VerifyNotBefore(now, false) {
		vErr.Inner = errors.New("token is not valid yet")
		vErr.Errors |= jwt.ValidationErrorNotValidYet
	}
	if vErr.Errors == 0 {
		return nil
	}
	return vErr
}

func (c *Claims) ExpiresAtTime() time.Time { return time.Unix(c.ExpiresAt, 0).UTC() }

func (c *Claims) IsAdmin() bool { return c.Role == user.RoleAdmin }

// HasAnyRole reports whether the claims hold one of roles. Admins pass every check.
func (c *Claims) HasAnyRole(roles ...string) bool {
	if c.IsAdmin() || len(roles) == 0 {
		return true
	}
	for _, role := range roles {
		if c.Role == role {
			return true
		}
	}
	return false
}

// TokenManager issues and verifies access and refresh tokens, each type signed with its own secret.
type TokenManager struct {
	issuer     string
	audience   string
	accessKey  []byte
	refreshKey []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewTokenManager(conf *core.Config) *TokenManager {
	return &TokenManager{
		issuer:     conf.Auth.Issuer,
		audience:   conf.Auth.Audience,
		accessKey:  []byte(conf.Auth.AccessSecret),
		refreshKey: []byte(conf.Auth.RefreshSecret),
		accessTTL:  conf.Auth.AccessTokenTTL,
		refreshTTL: conf.Auth.RefreshTokenTTL,
	}
}

func (tm *TokenManager) AccessTTL() time.Duration { return tm.accessTTL }

func (tm *TokenManager) settings(typ string) ([]byte, time.Duration, error) {
	switch typ {
	case TokenTypeAccess:
		return tm.accessKey, tm.accessTTL, nil
	case TokenTypeRefresh:
		return tm.refreshKey, tm.refreshTTL, nil
	default:
		return nil, 0, errors.Errorf("unknown token type %q", typ)
	}
}

// Issue generates a signed token of type typ for usr, with a fresh jti.
func (tm *TokenManager) Issue(usr user.User, typ string) (string, *Claims, error) {
	key, ttl, err := tm.settings(typ)
	if err != nil {
		return "", nil, err
	}

	now := nowFunc()
	claims := &Claims{
		StandardClaims: jwt.StandardClaims{
			Id:        uuid.NewString(),
			Subject:   usr.ID,
			Issuer:    tm.issuer,
			Audience:  tm.audience,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
		},
		Email:     usr.Email,
		Role:      usr.Role,
		TokenType: typ,
	}

	ss, err := jwt.NewWithClaims(signingMethod, claims).SignedString(key)
	if err != nil {
		return "", nil, errors.Wrap(err, "signing token")
	}
	return ss, claims, nil
}

// Parse verifies the signature, algorithm, expiry, issuer, audience and type of token.
func (tm *TokenManager) Parse(token, typ string) (*Claims, error) {
	key, _, err := tm.settings(typ)
	if err != nil {
		return nil, err
	}

	claims := new(Claims)
	_, err = jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != signingMethod.Alg() {
			return nil, errors.Errorf("unexpected signing method %q", t.Header["alg"])
		}
		return key, nil
	})
	if err != nil {
		if ve, ok := err.(*jwt.ValidationError); ok && ve.Errors&jwt.ValidationErrorExpired != 0 &&
			ve.Errors&(jwt.ValidationErrorSignatureInvalid|jwt.ValidationErrorUnverifiable|jwt.ValidationErrorMalformed) == 0 {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	if claims.TokenType != typ || claims.Id == "" || claims.Subject == "" ||
		!claims.VerifyIssuer(tm.issuer, true) || !claims.VerifyAudience(tm.audience, true) {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
