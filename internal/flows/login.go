package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/tokenguard/events"
	"github.com/MrEthical07/tokenguard/token"
	"github.com/MrEthical07/tokenguard/user"
)

// LoginFailureKind classifies login flow failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureValidation
	LoginFailureRateLimited
	LoginFailureInvalidCredentials
	LoginFailureStore
)

// LoginResult is the flow-local login response shape.
type LoginResult struct {
	Failure LoginFailureKind
	Err     error
	UserID  string
	TokenID string
	Pair    TokenPair
	Events  []events.Event
}

type LoginRateLimiter interface {
	CheckLogin(ctx context.Context, identifier, ip string) error
	IncrementLogin(ctx context.Context, identifier, ip string) error
	ResetLogin(ctx context.Context, identifier, ip string) error
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	Now         func() time.Time
	TTL         time.Duration
	ClientIP    func(context.Context) string
	Users       user.Repository
	Tokens      token.Repository
	Tx          TxRunner
	Verify      func(password, encodedHash string) (bool, error)
	DummyVerify func(password string)
	Generate    func() (string, string, error)
	IssueAccess AccessIssuer
	RateLimiter LoginRateLimiter
	Warn        func(msg string, args ...any)
}

// RunLogin authenticates email/password and issues an access token plus a
// new refresh token bound to deviceID. Unknown emails, deleted accounts and
// wrong passwords all fail the same way.
func RunLogin(ctx context.Context, rawEmail, password, deviceID string, deps LoginDeps) LoginResult {
	email, err := user.NewEmail(rawEmail)
	if err != nil {
		return LoginResult{Failure: LoginFailureValidation, Err: err}
	}
	if password == "" {
		return LoginResult{Failure: LoginFailureValidation, Err: errors.New("password is required")}
	}
	if deviceID == "" {
		return LoginResult{Failure: LoginFailureValidation, Err: errors.New("device id is required")}
	}

	ip := ""
	if deps.ClientIP != nil {
		ip = deps.ClientIP(ctx)
	}
	identifier := email.String()

	if deps.RateLimiter != nil {
		if err := deps.RateLimiter.CheckLogin(ctx, identifier, ip); err != nil {
			return LoginResult{Failure: LoginFailureRateLimited, Err: err}
		}
	}

	u, err := deps.Users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, user.ErrNotFound) {
		return LoginResult{Failure: LoginFailureStore, Err: err}
	}
	if err != nil || !u.Active() {
		if deps.DummyVerify != nil {
			deps.DummyVerify(password)
		}
		return loginRejected(ctx, identifier, ip, deps)
	}

	ok, err := deps.Verify(password, u.PasswordHash)
	if err != nil || !ok {
		return loginRejected(ctx, identifier, ip, deps)
	}

	if deps.RateLimiter != nil {
		if err := deps.RateLimiter.ResetLogin(ctx, identifier, ip); err != nil && deps.Warn != nil {
			deps.Warn("login limiter reset failed", "error", err)
		}
	}

	var res LoginResult
	err = deps.Tx.RunInTx(ctx, func(ctx context.Context) error {
		raw, hash, err := deps.Generate()
		if err != nil {
			return err
		}
		t, err := token.New(hash, u.ID, deviceID, deps.Now(), deps.TTL)
		if err != nil {
			return err
		}
		if err := deps.Tokens.Insert(ctx, t); err != nil {
			return err
		}
		access, accessExp, err := deps.IssueAccess(u.ID)
		if err != nil {
			return err
		}
		res = LoginResult{
			UserID:  u.ID,
			TokenID: t.ID,
			Pair: TokenPair{
				AccessToken:      access,
				AccessExpiresAt:  accessExp,
				RefreshToken:     raw,
				RefreshExpiresAt: t.ExpiresAt,
			},
			Events: t.PullEvents(),
		}
		return nil
	})
	if err != nil {
		return LoginResult{Failure: LoginFailureStore, Err: err, UserID: u.ID}
	}
	return res
}

func loginRejected(ctx context.Context, identifier, ip string, deps LoginDeps) LoginResult {
	if deps.RateLimiter != nil {
		if err := deps.RateLimiter.IncrementLogin(ctx, identifier, ip); err != nil {
			// The failed attempt that crosses the budget is still reported
			// as a credential failure; the next one is throttled.
			if deps.Warn != nil {
				deps.Warn("login limiter increment failed", "error", err)
			}
		}
	}
	return LoginResult{Failure: LoginFailureInvalidCredentials}
}
