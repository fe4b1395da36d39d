package token

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/tutorhub-session/users"
	"github.com/pkg/errors"
)

var (
	ErrInvalidAccessToken = errors.New("invalid access token")
	ErrRevokedAccessToken = errors.New("access token revoked")
)

// Claims are the fields the development backend reads back from an access token.
type Claims struct {
	Subject   string
	Email     string
	Role      users.Role
	JTI       string
	ExpiresAt time.Time
}

// Issuer signs and verifies the short-lived access tokens handed out by the development backend.
type Issuer struct {
	signer            Signer
	issuer            string
	accessTokenExpiry time.Duration
	revokedCache      RevokedTokenCache
	nowFunc           func() time.Time
}

type IssuerOption func(*Issuer)

func WithAccessTokenExpiry(expiry time.Duration) IssuerOption {
	return func(i *Issuer) {
		i.accessTokenExpiry = expiry
	}
}

func WithNowFunc(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		i.nowFunc = now
	}
}

func WithIssuer(issuer string) IssuerOption {
	return func(i *Issuer) {
		i.issuer = issuer
	}
}

func WithRevokedTokenCache(cache RevokedTokenCache) IssuerOption {
	return func(i *Issuer) {
		i.revokedCache = cache
	}
}

func NewIssuer(signer Signer, options ...IssuerOption) *Issuer {
	i := &Issuer{
		signer: signer,
		issuer: "tutorhub-dev",
	}

	for _, opt := range options {
		opt(i)
	}

	if i.accessTokenExpiry == 0 {
		i.accessTokenExpiry = 15 * time.Minute
	}
	if i.nowFunc == nil {
		i.nowFunc = time.Now
	}
	if i.revokedCache == nil {
		i.revokedCache = NewInMemoryRevokedTokenCache(i.nowFunc)
	}
	return i
}

func (i *Issuer) AccessTokenExpiry() time.Duration {
	return i.accessTokenExpiry
}

func (i *Issuer) CreateAccessToken(user *users.User) (string, error) {
	if !user.Valid() {
		return "", errors.New("[Issuer.CreateAccessToken] user id and role are required")
	}
	now := i.nowFunc()

	claims := jwt.MapClaims{
		"iss":   i.issuer,
		"sub":   user.ID,
		"email": user.Email,
		"role":  string(user.Role),
		"iat":   now.Unix(),
		"exp":   now.Add(i.accessTokenExpiry).Unix(),
		"jti":   uuid.New().String(),
	}
	signed, err := i.signer.Sign(claims)
	if err != nil {
		return "", errors.Wrap(err, "[Issuer.CreateAccessToken] sign")
	}
	return signed, nil
}

// Verify checks signature, expiry and revocation.
func (i *Issuer) Verify(rawToken string) (*Claims, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, ErrInvalidAccessToken
	}

	parser := jwt.NewParser(jwt.WithTimeFunc(i.nowFunc), jwt.WithIssuer(i.issuer), jwt.WithExpirationRequired())
	parsed, err := parser.Parse(rawToken, i.signer.GetVerificationKey)
	if err != nil || !parsed.Valid {
		return nil, errors.Wrap(ErrInvalidAccessToken, errString(err))
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.Wrap(ErrInvalidAccessToken, "error extracting claims from token")
	}

	sub, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	role, _ := claims["role"].(string)
	jti, _ := claims["jti"].(string)
	exp, _ := claims.GetExpirationTime()

	if jti != "" && i.revokedCache.IsRevoked(jti) {
		return nil, ErrRevokedAccessToken
	}

	c := &Claims{Subject: sub, Email: email, Role: users.Role(role), JTI: jti}
	if exp != nil {
		c.ExpiresAt = exp.Time
	}
	return c, nil
}

// Revoke blacklists a verified access token until its natural expiry.
func (i *Issuer) Revoke(rawToken string) error {
	claims, err := i.Verify(rawToken)
	if err != nil {
		return errors.Wrap(err, "[Issuer.Revoke] verify")
	}
	if claims.JTI == "" {
		return errors.New("[Issuer.Revoke] token missing jti claim")
	}
	return i.revokedCache.Add(claims.JTI, claims.ExpiresAt)
}

// CleanupRevokedTokens removes expired tokens from the revocation cache and returns how many went.
func (i *Issuer) CleanupRevokedTokens() int {
	return i.revokedCache.Cleanup()
}

func errString(err error) string {
	if err == nil {
		return "token not valid"
	}
	return err.Error()
}
