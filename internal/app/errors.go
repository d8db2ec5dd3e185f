package app

import "errors"

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrPasswordMismatch  = errors.New("passwords do not match")
	ErrEmailExists       = errors.New("an user with this e-mail already exists")
	ErrInvalidCredential = errors.New("invalid email or password")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrUserNotFound      = errors.New("user not found")
	ErrChatNotFound      = errors.New("chat not found")
	ErrGenerationFailed  = errors.New("could not reach generation backend")
)
