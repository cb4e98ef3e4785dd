// Package auth provides the simulated collaborators behind the sign-up and sign-in flow: passkey
// wallet creation, wallet import and email magic links.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"
	"time"

	"github.com/amp-labs/wizard/logger"
	"github.com/amp-labs/wizard/statemachine"
	"github.com/amp-labs/wizard/validate"
	"github.com/zeebo/xxh3"
)

// Action names as used in the flow definition.
const (
	ActionPasskey   = "passkey"
	ActionImport    = "import"
	ActionEmailLink = "email-link"
)

// Field names the actions read.
const (
	FieldMode         = "mode"
	FieldWalletChoice = "walletChoice"
	FieldEmail        = "email"

	ModeSignup = "signup"
	ModeSignin = "signin"
)

// Messages shown once an action succeeds.
const (
	MessageWalletCreated  = "🎉 New seedless wallet created successfully! Your account is secured with passkey authentication - no seed phrases to remember."
	MessageSignedIn       = "✅ Successfully signed in! Welcome back to your learning journey."
	MessageWalletImported = "🔐 Wallet imported successfully! You're now logged in with your existing Stellar wallet."
	MessageEmailSent      = "📧 Check your email! We've sent you a secure login link."
)

// ReasonInvalidCredentials is reported when an import is refused.
const ReasonInvalidCredentials = "INVALID_CREDENTIALS"

const invalidCredentials = "Invalid wallet credentials. Please check your secret key or seed phrase and try again."

// Config holds the simulated latencies and the token issuer.
type Config struct {
	PasskeyLatency time.Duration
	ImportLatency  time.Duration
	EmailLatency   time.Duration
	Tokens         *TokenIssuer
}

// DefaultConfig returns the latencies of the hosted demo.
func DefaultConfig(tokens *TokenIssuer) Config {
	return Config{
		PasskeyLatency: 2 * time.Second,
		ImportLatency:  2 * time.Second,
		EmailLatency:   1500 * time.Millisecond,
		Tokens:         tokens,
	}
}

// Actions returns every auth collaborator.
func Actions(cfg Config) []statemachine.Action {
	return []statemachine.Action{
		statemachine.NewAction(ActionPasskey, cfg.passkey),
		statemachine.NewAction(ActionImport, cfg.importWallet),
		statemachine.NewAction(ActionEmailLink, cfg.emailLink),
	}
}

var addressEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// newAddress makes a random account address in the public key format.
func newAddress() (string, error) {
	raw := make([]byte, 35)

	_, err := rand.Read(raw)
	if err != nil {
		return "", err
	}

	return (validate.PublicKeyPrefix + addressEncoding.EncodeToString(raw))[:validate.KeyMinLength], nil
}

// addressFor derives a stable address from imported credentials so re-imports match.
func addressFor(secret string) string {
	sum := xxh3.HashString128(secret).Bytes()
	raw := make([]byte, 0, 35)

	for len(raw) < 35 {
		raw = append(raw, sum[:]...)
	}

	return (validate.PublicKeyPrefix + addressEncoding.EncodeToString(raw[:35]))[:validate.KeyMinLength]
}

func (c Config) token(subject, method, wallet string, payload map[string]any) error {
	if c.Tokens == nil {
		return nil
	}

	token, expires, err := c.Tokens.Issue(subject, method, wallet)
	if err != nil {
		return err
	}

	payload["token"] = token
	payload["expiresAt"] = expires.UTC().Format(time.RFC3339)

	return nil
}

func (c Config) passkey(ctx context.Context, fields statemachine.Fields) (map[string]any, error) {
	err := statemachine.Sleep(ctx, c.PasskeyLatency)
	if err != nil {
		return nil, err
	}

	address, err := newAddress()
	if err != nil {
		return nil, statemachine.Fail(statemachine.ReasonActionFailed, "Authentication failed. Please try again.")
	}

	payload := map[string]any{
		"address": address,
		"method":  ActionPasskey,
	}

	if fields[FieldMode] == ModeSignin {
		payload["message"] = MessageSignedIn
	} else {
		payload["message"] = MessageWalletCreated
	}

	err = c.token(address, ActionPasskey, address, payload)
	if err != nil {
		return nil, fmt.Errorf("issuing token: %w", err)
	}

	logger.Get(ctx).Info("Passkey wallet ready", "address", address)

	return payload, nil
}

func (c Config) importWallet(ctx context.Context, fields statemachine.Fields) (map[string]any, error) {
	err := statemachine.Sleep(ctx, c.ImportLatency)
	if err != nil {
		return nil, err
	}

	check := validate.WalletCredentials(validate.FieldImportMethod, validate.FieldSecretKey, validate.FieldSeedPhrase)
	if check(fields) != nil {
		return nil, statemachine.Fail(ReasonInvalidCredentials, invalidCredentials)
	}

	method := fields[validate.FieldImportMethod]
	if method == "" {
		method = validate.ImportMethodSecret
	}

	credential := strings.TrimSpace(fields[validate.FieldSecretKey])
	if method == validate.ImportMethodSeed {
		credential = strings.Join(strings.Fields(fields[validate.FieldSeedPhrase]), " ")
	}

	address := addressFor(credential)
	payload := map[string]any{
		"address": address,
		"method":  method,
		"message": MessageWalletImported,
	}

	err = c.token(address, ActionImport, address, payload)
	if err != nil {
		return nil, fmt.Errorf("issuing token: %w", err)
	}

	return payload, nil
}

func (c Config) emailLink(ctx context.Context, fields statemachine.Fields) (map[string]any, error) {
	err := statemachine.Sleep(ctx, c.EmailLatency)
	if err != nil {
		return nil, err
	}

	email := strings.TrimSpace(fields[FieldEmail])
	if validate.CheckEmail(FieldEmail, email) != nil {
		return nil, statemachine.Fail(string(validate.ReasonInvalidEmail), "Please enter a valid email address")
	}

	payload := map[string]any{
		"email":   email,
		"method":  ActionEmailLink,
		"message": MessageEmailSent,
	}

	err = c.token(email, ActionEmailLink, "", payload)
	if err != nil {
		return nil, fmt.Errorf("issuing token: %w", err)
	}

	return payload, nil
}
