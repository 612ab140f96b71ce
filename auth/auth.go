package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/dgrijalva/jwt-go"
	"go.uber.org/zap"
)

// ContextKey is a defined type to be used in context.Context containing the Claims
type ContextKey string

// Context is key used in context.Context containing the Claims
const Context ContextKey = "authContext"

// RoleOperator is the only role allowed to read billing status
const RoleOperator = "operator"

// Auth guards the billing endpoints: a shared secret for the scheduler, operator JWTs for dashboards
type Auth struct {
	Options
	jwtKey []byte
	secret []byte
}

// Claims is the struct for jwt token
type Claims struct {
	jwt.StandardClaims
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Options provides initialization parameters for Auth
type Options struct {
	Logger *zap.Logger

	// SchedulerSecret gates the run trigger. Empty leaves the trigger open
	SchedulerSecret string
	// JWTSigningKey verifies operator tokens. Empty makes the status endpoint accept the scheduler secret instead
	JWTSigningKey string
	TokenTTL      time.Duration
}

func (o *Options) validate() error {
	if o == nil {
		return fmt.Errorf("nil option is invalid")
	}
	if o.Logger == nil {
		return fmt.Errorf("nil Logger is invalid")
	}
	if o.JWTSigningKey != "" && len(o.JWTSigningKey) < 16 {
		return fmt.Errorf("jwt signing key must be longer than 16 characters")
	}
	if o.TokenTTL == 0 {
		o.TokenTTL = time.Hour * 12
	}
	return nil
}

// New will return a new instance of Auth for the billing endpoints
func New(option Options) (*Auth, error) {
	if err := option.validate(); err != nil {
		return nil, err
	}
	if option.SchedulerSecret == "" {
		option.Logger.Warn("No scheduler secret configured, billing runs can be triggered by anyone")
	}
	return &Auth{
		Options: option,
		jwtKey:  []byte(option.JWTSigningKey),
		secret:  []byte(option.SchedulerSecret),
	}, nil
}

// ClaimsFromContext returns the operator Claims set by Middleware, if any
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(Context).(*Claims)
	return claims, ok
}
