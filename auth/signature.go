package auth

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"github.com/xraph/factor/types"
)

// Request signing headers. X-Signature carries one
// "<base58 pubkey>:<base58 signature>" pair per signer; every signer signs
// the same Envelope, built from the timestamp and nonce headers.
const (
	HeaderSignature = "X-Signature"
	HeaderTimestamp = "X-Signature-Timestamp"
	HeaderNonce     = "X-Signature-Nonce"
)

// MaxNonceLength bounds the nonce header.
const MaxNonceLength = 128

// Envelope is what a request signature covers. Method and path bind the
// signature to one operation on one invoice; timestamp and nonce make it
// single-use.
type Envelope struct {
	Method    string
	Path      string
	Timestamp time.Time
	Nonce     string
	Body      []byte
}

// Message returns the signed bytes:
//
//	METHOD " " path "\n" unix-seconds "\n" nonce "\n" body
func (e Envelope) Message() []byte {
	var b bytes.Buffer
	b.Grow(len(e.Method) + len(e.Path) + len(e.Nonce) + len(e.Body) + 24)
	b.WriteString(strings.ToUpper(e.Method))
	b.WriteByte(' ')
	b.WriteString(e.Path)
	b.WriteByte('\n')
	b.WriteString(strconv.FormatInt(e.Timestamp.Unix(), 10))
	b.WriteByte('\n')
	b.WriteString(e.Nonce)
	b.WriteByte('\n')
	b.Write(e.Body)
	return b.Bytes()
}

// Fresh reports whether the envelope's timestamp is within skew of now.
func (e Envelope) Fresh(now time.Time, skew time.Duration) bool {
	d := now.Sub(e.Timestamp)
	return d <= skew && d >= -skew
}

// ReadEnvelope builds the envelope of r from its signing headers and the
// already-read body.
func ReadEnvelope(r *http.Request, body []byte) (Envelope, error) {
	rawTS := r.Header.Get(HeaderTimestamp)
	ts, err := strconv.ParseInt(rawTS, 10, 64)
	if err != nil {
		return Envelope{}, errors.Wrapf(ErrMalformedHeader, "%s %q", HeaderTimestamp, rawTS)
	}
	nonce := r.Header.Get(HeaderNonce)
	if nonce == "" || len(nonce) > MaxNonceLength {
		return Envelope{}, errors.Wrapf(ErrMalformedHeader, "%s must be 1 to %d bytes", HeaderNonce, MaxNonceLength)
	}
	return Envelope{
		Method:    r.Method,
		Path:      r.URL.Path,
		Timestamp: time.Unix(ts, 0).UTC(),
		Nonce:     nonce,
		Body:      body,
	}, nil
}

// Verify checks an ed25519 signature over msg and returns the signer's
// address, which is the base58 public key.
func Verify(pubkey, signature string, msg []byte) (types.Address, error) {
	pk, err := solana.PublicKeyFromBase58(pubkey)
	if err != nil {
		return "", errors.Wrapf(ErrMalformedHeader, "public key: %v", err)
	}
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return "", errors.Wrapf(ErrMalformedHeader, "signature: %v", err)
	}
	if !sig.Verify(pk, msg) {
		return "", errors.WithDetailf(ErrInvalidSignature, "signer %s", pk)
	}
	return types.Address(pk.String()), nil
}

// VerifyHeader parses a signature header value and verifies it over msg.
func VerifyHeader(value string, msg []byte) (types.Address, error) {
	pubkey, signature, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok || pubkey == "" || signature == "" {
		return "", ErrMalformedHeader
	}
	return Verify(pubkey, signature, msg)
}

// SignHeader produces a signature header value for msg.
func SignHeader(key solana.PrivateKey, msg []byte) (string, error) {
	sig, err := key.Sign(msg)
	if err != nil {
		return "", errors.Wrap(err, "auth: sign")
	}
	return key.PublicKey().String() + ":" + sig.String(), nil
}

// SignRequest stamps req with a timestamp taken from now and a fresh
// nonce, then adds one signature header per key. body must be the exact
// bytes req will send.
func SignRequest(req *http.Request, body []byte, now time.Time, keys ...solana.PrivateKey) error {
	env := Envelope{
		Method:    req.Method,
		Path:      req.URL.Path,
		Timestamp: now,
		Nonce:     uuid.NewString(),
		Body:      body,
	}
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(now.Unix(), 10))
	req.Header.Set(HeaderNonce, env.Nonce)

	msg := env.Message()
	for _, key := range keys {
		header, err := SignHeader(key, msg)
		if err != nil {
			return err
		}
		req.Header.Add(HeaderSignature, header)
	}
	return nil
}

// AddressOf returns the marketplace address for key.
func AddressOf(key solana.PrivateKey) types.Address {
	return types.Address(key.PublicKey().String())
}
