package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidSignature is returned for forged, tampered, malformed or
	// foreign tokens (wrong algorithm, key id, issuer or audience).
	ErrInvalidSignature = errors.New("token signature invalid")
	// ErrExpired is returned by Verify for a correctly signed token past its expiry.
	ErrExpired = errors.New("token expired")
	// ErrMissingSubject is returned when a token carries no user identity.
	ErrMissingSubject = errors.New("token subject missing")

	errMissingKID = errors.New("missing kid")
	errUnknownKID = errors.New("unknown kid")
)

// SigningMethod selects the token signature algorithm.
type SigningMethod string

const (
	// MethodEd25519 signs with EdDSA over Ed25519.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with HMAC-SHA256 using PrivateKey as the shared secret.
	MethodHS256 SigningMethod = "hs256"
)

// DefaultTokenTTL is the validity window of every issued token.
const DefaultTokenTTL = 24 * time.Hour

const (
	maxLeeway           = 2 * time.Minute
	defaultMaxFutureIAT = 10 * time.Minute
)

// Config configures a Manager.
//
// PrivateKey is the HMAC secret for hs256, or an Ed25519 private key (raw or
// PEM) for ed25519. VerifyKeys, when set, maps kid header values to accepted
// verification keys for rotation. Now defaults to time.Now.
type Config struct {
	TokenTTL      time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	MaxFutureIAT  time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte
	Now           func() time.Time
}

// Manager issues, refreshes and verifies session tokens. Key material is
// decoded once in NewManager; a Manager holds no mutable state and is safe
// for concurrent use.
type Manager struct {
	ttl          time.Duration
	issuer       string
	audience     string
	leeway       time.Duration
	maxFutureIAT time.Duration
	now          func() time.Time

	method  jwt.SigningMethod
	kid     string
	signKey any
	// verify holds the accepted keys by kid. The empty kid entry is used when
	// no rotation set is configured.
	verify   map[string]any
	rotating bool
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	m := &Manager{
		ttl:          cfg.TokenTTL,
		issuer:       cfg.Issuer,
		audience:     cfg.Audience,
		leeway:       cfg.Leeway,
		maxFutureIAT: cfg.MaxFutureIAT,
		now:          cfg.Now,
		kid:          strings.TrimSpace(cfg.KeyID),
		rotating:     len(cfg.VerifyKeys) > 0,
	}
	switch {
	case m.ttl == 0:
		m.ttl = DefaultTokenTTL
	case m.ttl < 0:
		return nil, errors.New("invalid TTL configuration")
	}
	if m.leeway < 0 || m.leeway > maxLeeway {
		return nil, errors.New("invalid leeway configuration")
	}
	if m.maxFutureIAT == 0 {
		m.maxFutureIAT = defaultMaxFutureIAT
	}
	if m.maxFutureIAT < 0 || m.maxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	if m.now == nil {
		m.now = time.Now
	}
	if err := m.loadKeys(cfg); err != nil {
		return nil, err
	}
	if m.kid != "" && m.rotating {
		if _, ok := m.verify[m.kid]; !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
	}
	return m, nil
}

func (m *Manager) loadKeys(cfg Config) error {
	if cfg.SigningMethod != MethodHS256 && cfg.SigningMethod != MethodEd25519 {
		return errors.New("unsupported signing method")
	}
	if len(cfg.PrivateKey) == 0 {
		return fmt.Errorf("%s requires private key", cfg.SigningMethod)
	}
	m.verify = make(map[string]any, len(cfg.VerifyKeys)+1)

	switch cfg.SigningMethod {
	case MethodHS256:
		m.method = jwt.SigningMethodHS256
		m.signKey = cfg.PrivateKey
		m.verify[""] = cfg.PrivateKey
		for kid, key := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return errors.New("verify key map contains empty kid")
			}
			m.verify[kid] = key
		}
	case MethodEd25519:
		m.method = jwt.SigningMethodEdDSA
		priv, err := parseEdPrivateKey(cfg.PrivateKey)
		if err != nil {
			return err
		}
		m.signKey = priv
		switch {
		case len(cfg.PublicKey) > 0:
			pub, err := parseEdPublicKey(cfg.PublicKey)
			if err != nil {
				return err
			}
			m.verify[""] = pub
		case len(cfg.VerifyKeys) == 0:
			return errors.New("ed25519 requires public key or verify key set")
		default:
			m.verify[""] = priv.Public()
		}
		for kid, key := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return errors.New("verify key map contains empty kid")
			}
			pub, err := parseEdPublicKey(key)
			if err != nil {
				return fmt.Errorf("invalid ed25519 verify key for kid %q: %w", kid, err)
			}
			m.verify[kid] = pub
		}
	}
	return nil
}

// TTL returns the validity window of issued tokens.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Issue signs a token for userID and phone valid for TokenTTL from now. The
// returned expiry is truncated to the second, as carried in the token.
func (m *Manager) Issue(userID, phone string) (string, time.Time, error) {
	if strings.TrimSpace(userID) == "" {
		return "", time.Time{}, ErrMissingSubject
	}

	issued := m.now()
	claims := Claims{
		Phone: phone,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(m.ttl)),
		},
	}
	if m.audience != "" {
		claims.Audience = jwt.ClaimStrings{m.audience}
	}

	tok := jwt.NewWithClaims(m.method, claims)
	if m.kid != "" {
		tok.Header["kid"] = m.kid
	}
	signed, err := tok.SignedString(m.signKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, claims.ExpiresAt.Time, nil
}

// Refresh verifies the signature of old while ignoring its expiry and issues a
// new token with the same identity and a fresh window.
func (m *Manager) Refresh(old string) (string, time.Time, error) {
	claims, err := m.parse(old, jwt.WithoutClaimsValidation())
	if err != nil {
		return "", time.Time{}, err
	}
	// Claim validation is off, so check what must still hold.
	if m.issuer != "" && claims.Issuer != m.issuer {
		return "", time.Time{}, fmt.Errorf("%w: issuer mismatch", ErrInvalidSignature)
	}
	if m.audience != "" && !slices.Contains(claims.Audience, m.audience) {
		return "", time.Time{}, fmt.Errorf("%w: audience mismatch", ErrInvalidSignature)
	}
	return m.Issue(claims.Subject, claims.Phone)
}

// Verify parses token and enforces expiry, issuer and audience.
func (m *Manager) Verify(token string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if m.leeway > 0 {
		opts = append(opts, jwt.WithLeeway(m.leeway))
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	if m.audience != "" {
		opts = append(opts, jwt.WithAudience(m.audience))
	}

	claims, err := m.parse(token, opts...)
	if err != nil {
		return nil, err
	}
	if claims.IssuedAt != nil && claims.IssuedAt.Time.After(m.now().Add(m.maxFutureIAT)) {
		return nil, fmt.Errorf("%w: iat too far in the future", ErrInvalidSignature)
	}
	return claims, nil
}

func (m *Manager) parse(raw string, extra ...jwt.ParserOption) (*Claims, error) {
	parser := jwt.NewParser(append([]jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithTimeFunc(m.now),
	}, extra...)...)

	claims := &Claims{}
	tok, err := parser.ParseWithClaims(raw, claims, m.lookupKey)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpired
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	case !tok.Valid:
		return nil, ErrInvalidSignature
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrMissingSubject
	}
	return claims, nil
}

// lookupKey selects the verification key for t. With a rotation set every
// token must name a known kid; with a single KeyID the kid must match it.
func (m *Manager) lookupKey(t *jwt.Token) (any, error) {
	if t.Method.Alg() != m.method.Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}
	kid, _ := t.Header["kid"].(string)

	if m.rotating {
		if kid == "" {
			return nil, errMissingKID
		}
		key, ok := m.verify[kid]
		if !ok {
			return nil, errUnknownKID
		}
		return key, nil
	}
	if m.kid != "" {
		if kid == "" {
			return nil, errMissingKID
		}
		if kid != m.kid {
			return nil, errUnknownKID
		}
	}
	return m.verify[""], nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
