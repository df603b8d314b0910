// Package auth implements the identity gate. An operation names the
// identity it requires; the gate passes only if that identity is among the
// verified signers of the current request.
package auth

import (
	"context"
	"slices"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/xraph/factor/types"
)

var (
	ErrNotSigned        = errors.New("auth: identity did not sign the request")
	ErrInvalidSignature = errors.New("auth: invalid signature")
	ErrMalformedHeader  = errors.New("auth: malformed signature header")
	ErrStaleSignature   = errors.New("auth: signature timestamp outside the accepted window")
)

// Authorizer is the identity gate. RequireAuth fails unless identity is a
// verified signer of the request carried by ctx.
type Authorizer interface {
	RequireAuth(ctx context.Context, identity types.Address) error
}

// AuthorizerFunc adapts a plain function to an Authorizer.
type AuthorizerFunc func(ctx context.Context, identity types.Address) error

// RequireAuth implements Authorizer.
func (f AuthorizerFunc) RequireAuth(ctx context.Context, identity types.Address) error {
	return f(ctx, identity)
}

// AllowAll treats every identity as signed. Use it in tests and trusted
// single-tenant deployments only.
var AllowAll Authorizer = AuthorizerFunc(func(context.Context, types.Address) error { return nil })

// ContextAuthorizer checks identities against the signer set attached to
// ctx by WithSigners.
type ContextAuthorizer struct{}

// RequireAuth implements Authorizer.
func (ContextAuthorizer) RequireAuth(ctx context.Context, identity types.Address) error {
	if slices.Contains(Signers(ctx), identity) {
		return nil
	}
	return errors.WithDetailf(ErrNotSigned, "identity %q", identity)
}

type signersKey struct{}

// WithSigners returns a copy of ctx whose signer set additionally contains
// addrs.
func WithSigners(ctx context.Context, addrs ...types.Address) context.Context {
	existing := Signers(ctx)
	merged := make([]types.Address, 0, len(existing)+len(addrs))
	merged = append(merged, existing...)
	for _, a := range addrs {
		if !slices.Contains(merged, a) {
			merged = append(merged, a)
		}
	}
	return context.WithValue(ctx, signersKey{}, merged)
}

// Signers returns the verified signer set carried by ctx.
func Signers(ctx context.Context) []types.Address {
	if v, ok := ctx.Value(signersKey{}).([]types.Address); ok {
		return v
	}
	return nil
}

// Credential is a verified request signature. The nonce is redeemed by the
// operation that consumes the signer's identity and is meaningful until
// ExpiresAt.
type Credential struct {
	Signer    types.Address
	Nonce     string
	ExpiresAt time.Time
}

type credentialsKey struct{}

// WithCredentials adds the signers of creds to ctx's signer set and keeps
// the credentials so the operation can redeem their nonces.
func WithCredentials(ctx context.Context, creds ...Credential) context.Context {
	signers := make([]types.Address, 0, len(creds))
	for _, c := range creds {
		signers = append(signers, c.Signer)
	}
	ctx = WithSigners(ctx, signers...)

	existing := credentials(ctx)
	merged := make([]Credential, 0, len(existing)+len(creds))
	merged = append(merged, existing...)
	merged = append(merged, creds...)
	return context.WithValue(ctx, credentialsKey{}, merged)
}

// CredentialFor returns the credential signer presented with the request
// carried by ctx.
func CredentialFor(ctx context.Context, signer types.Address) (Credential, bool) {
	for _, c := range credentials(ctx) {
		if c.Signer == signer {
			return c, true
		}
	}
	return Credential{}, false
}

func credentials(ctx context.Context) []Credential {
	if v, ok := ctx.Value(credentialsKey{}).([]Credential); ok {
		return v
	}
	return nil
}
