package auth

// Verifier turns a bearer token into the caller's identity.
// The session issuer is outside this service; anything that can check its
// tokens can sit behind this interface (JWT today, an introspection call
// tomorrow) without changing the service layer.
type Verifier interface {
	// Verify checks the token and returns its claims.
	// Returns ErrInvalidToken if the token is malformed, forged or expired.
	Verify(token string) (*Claims, error)
}
