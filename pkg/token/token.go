// Package token mints and verifies the capability tokens chaining the
// commit creation protocol together.
//
// Tokens are short-lived HMAC-SHA256 JWTs. Each protocol step consumes
// the token(s) of the previous step and mints exactly one new token with
// narrower claims. The codec is pure: it holds keys and a TTL, no state.
package token

import (
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/oneconcern/paramon/pkg/status"
)

// Kind discriminates the token chain stages
type Kind string

const (
	// KindInitiate authorizes the proof existence check
	KindInitiate Kind = "commit_initiate"

	// KindZKML authorizes uploading the proof triple it allow-lists
	KindZKML Kind = "commit_zkml"

	// KindZKMLReceipt attests the proof triple was uploaded and persisted
	KindZKMLReceipt Kind = "commit_zkml_receipt"

	// KindParamsReceipt attests the parameter blob was uploaded and persisted
	KindParamsReceipt Kind = "commit_params_receipt"
)

// Context is the scope every token is bound to
type Context struct {
	SessionID string `json:"sessionId"`
	Identity  string `json:"identity"`
	RepoID    string `json:"repoId"`
	BranchID  string `json:"branchId"`
}

// Matches tells whether two token scopes refer to the same session context
func (c Context) Matches(o Context) bool {
	return c == o
}

// AllowedCIDs is the content allow-list carried by the zkml token
type AllowedCIDs struct {
	Proof           string `json:"proofCid"`
	Settings        string `json:"settingsCid"`
	VerificationKey string `json:"vkCid"`
}

// InitiateClaims bind a fresh session to its resolved parent commit
type InitiateClaims struct {
	Kind             Kind   `json:"type"`
	Context          `json:"scope"`
	ParentCommitHash string `json:"parentCommitHash"`
	jwt.RegisteredClaims
}

// ZKMLClaims allow-list the declared proof CIDs ahead of the upload
type ZKMLClaims struct {
	Kind        Kind        `json:"type"`
	Context     `json:"scope"`
	AllowedCIDs AllowedCIDs `json:"allowedCids"`
	jwt.RegisteredClaims
}

// ZKMLReceiptClaims carry the persisted proof blob references
type ZKMLReceiptClaims struct {
	Kind               Kind   `json:"type"`
	Context            `json:"scope"`
	ProofCID           string `json:"proofCid"`
	SettingsCID        string `json:"settingsCid"`
	VerificationKeyCID string `json:"vkCid"`
	jwt.RegisteredClaims
}

// ParamsReceiptClaims carry the persisted parameter blob reference
type ParamsReceiptClaims struct {
	Kind      Kind   `json:"type"`
	Context   `json:"scope"`
	ParamsCID string `json:"paramsCid"`
	jwt.RegisteredClaims
}

// Option to configure the codec
type Option func(*Codec)

// WithClock overrides the time source, for tests
func WithClock(clock func() time.Time) Option {
	return func(c *Codec) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// Codec signs and verifies capability tokens.
//
// Two keys, as on the original deployment: the session key signs initiate
// tokens, the proof key signs everything downstream of the proof check.
type Codec struct {
	sessionKey []byte
	proofKey   []byte
	ttl        time.Duration
	clock      func() time.Time
}

// New creates a token codec
func New(sessionSecret, proofSecret string, ttl time.Duration, opts ...Option) *Codec {
	c := &Codec{
		sessionKey: []byte(sessionSecret),
		proofKey:   []byte(proofSecret),
		ttl:        ttl,
		clock:      time.Now,
	}
	for _, apply := range opts {
		apply(c)
	}
	return c
}

// TTL is the lifetime of minted tokens
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

func (c *Codec) registered(jti string) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		ID:        jti,
		IssuedAt:  jwt.NewNumericDate(c.clock()),
		ExpiresAt: jwt.NewNumericDate(c.clock().Add(c.ttl)),
	}
}

func (c *Codec) sign(claims jwt.Claims, key []byte) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", status.ErrInternal.Wrap(err)
	}
	return signed, nil
}

func (c *Codec) parse(tokenString string, claims jwt.Claims, key []byte) error {
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(c.clock))
	if err != nil {
		return status.ErrToken.Wrap(err)
	}
	return nil
}

// MintInitiate mints the token returned by session initiation
func (c *Codec) MintInitiate(scope Context, jti, parentCommitHash string) (string, time.Time, error) {
	claims := &InitiateClaims{
		Kind:             KindInitiate,
		Context:          scope,
		ParentCommitHash: parentCommitHash,
		RegisteredClaims: c.registered(jti),
	}
	signed, err := c.sign(claims, c.sessionKey)
	return signed, claims.ExpiresAt.Time, err
}

// VerifyInitiate checks an initiate token and returns its claims
func (c *Codec) VerifyInitiate(tokenString string) (*InitiateClaims, error) {
	var claims InitiateClaims
	if err := c.parse(tokenString, &claims, c.sessionKey); err != nil {
		return nil, err
	}
	if claims.Kind != KindInitiate {
		return nil, status.ErrToken.WrapMsg("unexpected token type %q", claims.Kind)
	}
	return &claims, nil
}

// MintZKML mints the token allow-listing the declared proof CIDs
func (c *Codec) MintZKML(scope Context, allowed AllowedCIDs) (string, time.Time, error) {
	claims := &ZKMLClaims{
		Kind:             KindZKML,
		Context:          scope,
		AllowedCIDs:      allowed,
		RegisteredClaims: c.registered(""),
	}
	signed, err := c.sign(claims, c.proofKey)
	return signed, claims.ExpiresAt.Time, err
}

// VerifyZKML checks a zkml token and returns its claims
func (c *Codec) VerifyZKML(tokenString string) (*ZKMLClaims, error) {
	var claims ZKMLClaims
	if err := c.parse(tokenString, &claims, c.proofKey); err != nil {
		return nil, err
	}
	if claims.Kind != KindZKML {
		return nil, status.ErrToken.WrapMsg("unexpected token type %q", claims.Kind)
	}
	return &claims, nil
}

// MintZKMLReceipt mints the receipt for a persisted proof triple
func (c *Codec) MintZKMLReceipt(scope Context, proofCID, settingsCID, vkCID string) (string, time.Time, error) {
	claims := &ZKMLReceiptClaims{
		Kind:               KindZKMLReceipt,
		Context:            scope,
		ProofCID:           proofCID,
		SettingsCID:        settingsCID,
		VerificationKeyCID: vkCID,
		RegisteredClaims:   c.registered(""),
	}
	signed, err := c.sign(claims, c.proofKey)
	return signed, claims.ExpiresAt.Time, err
}

// VerifyZKMLReceipt checks a zkml receipt token and returns its claims
func (c *Codec) VerifyZKMLReceipt(tokenString string) (*ZKMLReceiptClaims, error) {
	var claims ZKMLReceiptClaims
	if err := c.parse(tokenString, &claims, c.proofKey); err != nil {
		return nil, err
	}
	if claims.Kind != KindZKMLReceipt {
		return nil, status.ErrToken.WrapMsg("unexpected token type %q", claims.Kind)
	}
	return &claims, nil
}

// MintParamsReceipt mints the receipt for a persisted parameter blob
func (c *Codec) MintParamsReceipt(scope Context, paramsCID string) (string, time.Time, error) {
	claims := &ParamsReceiptClaims{
		Kind:             KindParamsReceipt,
		Context:          scope,
		ParamsCID:        paramsCID,
		RegisteredClaims: c.registered(""),
	}
	signed, err := c.sign(claims, c.proofKey)
	return signed, claims.ExpiresAt.Time, err
}

// VerifyParamsReceipt checks a params receipt token and returns its claims
func (c *Codec) VerifyParamsReceipt(tokenString string) (*ParamsReceiptClaims, error) {
	var claims ParamsReceiptClaims
	if err := c.parse(tokenString, &claims, c.proofKey); err != nil {
		return nil, err
	}
	if claims.Kind != KindParamsReceipt {
		return nil, status.ErrToken.WrapMsg("unexpected token type %q", claims.Kind)
	}
	return &claims, nil
}
