// Package publiclink issues and redeems single-use public links tied to a
// schedule entry. The signed token is handed to an external public-facing
// form; the core only stores it and later accepts it back as the
// form-submission correlation key.
package publiclink

import (
	"context"
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrTokenInvalid = errors.New("public link token invalid")
	ErrTokenUsed    = errors.New("public link token already used")
)

// Link is the correlation data carried by a redeemed token.
type Link struct {
	TenantID string
	TicketID string
	EntryID  string
}

// NonceStore tracks issued nonces so each link can be redeemed exactly once.
type NonceStore interface {
	Save(ctx context.Context, nonce string, ttl time.Duration) error
	Consume(ctx context.Context, nonce string) (bool, error)
}

// Issuer signs and redeems entry form links.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	nonces NonceStore
}

// NewIssuer builds an issuer. ttl bounds how long an unredeemed link stays
// valid.
func NewIssuer(secret string, ttl time.Duration, nonces NonceStore) *Issuer {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, nonces: nonces}
}

type linkClaims struct {
	TenantID string `json:"tenant"`
	TicketID string `json:"ticket"`
	EntryID  string `json:"entry"`
	Nonce    string `json:"nonce"`
	jwt.RegisteredClaims
}

// Issue signs a single-use link token for the given entry.
func (i *Issuer) Issue(ctx context.Context, tenantID, ticketID, entryID string) (string, error) {
	nonce := uuid.NewString()
	if err := i.nonces.Save(ctx, nonce, i.ttl); err != nil {
		return "", err
	}
	now := time.Now()
	claims := &linkClaims{
		TenantID: tenantID,
		TicketID: ticketID,
		EntryID:  entryID,
		Nonce:    nonce,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   entryID,
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// Peek verifies the token signature and expiry and returns the link without
// consuming the nonce. Callers validate the submission first and Redeem only
// when it is accepted.
func (i *Issuer) Peek(ctx context.Context, token string) (Link, error) {
	claims, err := i.parse(token)
	if err != nil {
		return Link{}, err
	}
	return Link{
		TenantID: claims.TenantID,
		TicketID: claims.TicketID,
		EntryID:  claims.EntryID,
	}, nil
}

// Redeem validates the token and consumes its nonce. A second redemption of
// the same token fails with ErrTokenUsed.
func (i *Issuer) Redeem(ctx context.Context, token string) (Link, error) {
	claims, err := i.parse(token)
	if err != nil {
		return Link{}, err
	}
	consumed, err := i.nonces.Consume(ctx, claims.Nonce)
	if err != nil {
		return Link{}, err
	}
	if !consumed {
		return Link{}, ErrTokenUsed
	}
	return Link{
		TenantID: claims.TenantID,
		TicketID: claims.TicketID,
		EntryID:  claims.EntryID,
	}, nil
}

func (i *Issuer) parse(token string) (*linkClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &linkClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return i.secret, nil
	})
	if err != nil {
		return nil, ErrTokenInvalid
	}
	claims, ok := parsed.Claims.(*linkClaims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
