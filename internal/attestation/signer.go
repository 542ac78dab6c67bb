package attestation

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Signer produces the signed form of a statement the ledger expects: the
// statement fields as JWT claims, HMAC-signed with the engaged identity's
// secret.
type Signer struct {
	secret []byte
	ttl    time.Duration
}

func NewSigner(secret string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Signer{secret: []byte(secret), ttl: ttl}
}

type statementClaims struct {
	Statement Statement `json:"statement"`
	jwt.RegisteredClaims
}

func (s *Signer) SignStatement(stmt Statement) (string, error) {
	now := time.Now()
	claims := &statementClaims{
		Statement: stmt,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   stmt.Account,
			ID:        stmt.UID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// VerifyStatement parses a signed statement back out of its token. Used by
// audit tooling and tests; the ledger does its own verification.
func (s *Signer) VerifyStatement(token string) (*Statement, error) {
	parsed, err := jwt.ParseWithClaims(token, &statementClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*statementClaims)
	if !ok || !parsed.Valid {
		return nil, jwt.ErrSignatureInvalid
	}
	return &claims.Statement, nil
}

// StaticIdentity is a fixed, always-connected signing identity configured
// from the environment. The mobile wallet connection is the production
// implementation behind the same interface.
type StaticIdentity struct {
	account string
}

func NewStaticIdentity(account string) *StaticIdentity {
	return &StaticIdentity{account: account}
}

func (i *StaticIdentity) IsConnected() bool {
	return i.account != ""
}

func (i *StaticIdentity) Account() string {
	return i.account
}
