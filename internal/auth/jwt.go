package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token kinds.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

// TokenPair holds access and refresh tokens.
type TokenPair struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	AccessExp    time.Time `json:"accessExpiresAt"`
	RefreshExp   time.Time `json:"refreshExpiresAt"`
}

// Identity is what a token says about its bearer.
type Identity struct {
	UserID   string
	Role     string
	BranchID string
	Semester int
}

// Claims represents JWT payload.
type Claims struct {
	Role     string `json:"role"`
	BranchID string `json:"branch,omitempty"`
	Semester int    `json:"semester,omitempty"`
	Kind     string `json:"kind"`
	jwt.RegisteredClaims
}

// Identity extracts the bearer identity.
func (c Claims) Identity() Identity {
	return Identity{UserID: c.Subject, Role: c.Role, BranchID: c.BranchID, Semester: c.Semester}
}

// Tokens issues and verifies HS256 tokens.
type Tokens struct {
	key        []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokens(key, issuer string, accessTTL, refreshTTL time.Duration) *Tokens {
	return &Tokens{key: []byte(key), issuer: issuer, accessTTL: accessTTL, refreshTTL: refreshTTL, now: time.Now}
}

func (t *Tokens) sign(id Identity, kind string, exp time.Time) (string, error) {
	claims := Claims{
		Role:     id.Role,
		BranchID: id.BranchID,
		Semester: id.Semester,
		Kind:     kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   id.UserID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(t.now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.key)
}

// Issue issues signed access and refresh tokens.
func (t *Tokens) Issue(id Identity) (TokenPair, error) {
	now := t.now()
	accessExp := now.Add(t.accessTTL)
	refreshExp := now.Add(t.refreshTTL)

	accessToken, err := t.sign(id, KindAccess, accessExp)
	if err != nil {
		return TokenPair{}, err
	}
	refreshToken, err := t.sign(id, KindRefresh, refreshExp)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
	}, nil
}

// Parse validates a token of the given kind and returns its claims.
func (t *Tokens) Parse(tokenStr, kind string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return t.key, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil {
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, errors.New("invalid token")
	}
	if t.issuer != "" && claims.Issuer != t.issuer {
		return Claims{}, errors.New("issuer mismatch")
	}
	if claims.Kind != kind {
		return Claims{}, errors.New("wrong token kind")
	}
	return *claims, nil
}
