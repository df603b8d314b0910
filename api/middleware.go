package api

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/xraph/factor"
	"github.com/xraph/factor/auth"
)

// HeaderRequestID carries the request id, generated when absent.
const HeaderRequestID = "X-Request-ID"

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(HeaderRequestID)
		if reqID == "" {
			reqID = uuid.NewString()
			r.Header.Set(HeaderRequestID, reqID)
		}
		w.Header().Set(HeaderRequestID, reqID)
		next.ServeHTTP(w, r)
	})
}

func (a *API) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		a.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", r.Header.Get(HeaderRequestID),
		)
	})
}

// verifySigners buffers the body and verifies every X-Signature header
// over the request's auth.Envelope. Verified signers are attached to the
// context as credentials whose nonces expire with the timestamp window.
// Stale or invalid signatures are ignored, so the engine rejects the
// operation if it needed that identity.
func (a *API) verifySigners(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
		if err != nil {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{
				Error: "request body too large",
				Code:  factor.CodeInvalidInput,
			})
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		creds := a.credentials(r, body)
		next.ServeHTTP(w, r.WithContext(auth.WithCredentials(r.Context(), creds...)))
	})
}

func (a *API) credentials(r *http.Request, body []byte) []auth.Credential {
	values := r.Header.Values(auth.HeaderSignature)
	if len(values) == 0 {
		return nil
	}
	reqID := r.Header.Get(HeaderRequestID)

	env, err := auth.ReadEnvelope(r, body)
	if err != nil {
		a.logger.Debug("ignoring signatures", "error", err, "request_id", reqID)
		return nil
	}
	if !env.Fresh(a.engine.Now(), a.maxSkew) {
		a.logger.Debug("ignoring signatures",
			"error", auth.ErrStaleSignature,
			"timestamp", env.Timestamp,
			"request_id", reqID,
		)
		return nil
	}

	msg := env.Message()
	expiresAt := env.Timestamp.Add(a.maxSkew)
	creds := make([]auth.Credential, 0, len(values))
	for _, value := range values {
		addr, err := auth.VerifyHeader(value, msg)
		if err != nil {
			a.logger.Debug("ignoring signature", "error", err, "request_id", reqID)
			continue
		}
		creds = append(creds, auth.Credential{Signer: addr, Nonce: env.Nonce, ExpiresAt: expiresAt})
	}
	return creds
}
