package auth

import "errors"

// Session token failures. Expired tokens are reported apart so the SPA can
// send the operator back to login.
var (
	ErrInvalidToken   = errors.New("auth: invalid token")
	ErrExpiredToken   = errors.New("auth: token expired")
	ErrMissingSubject = errors.New("auth: missing subject")
)
