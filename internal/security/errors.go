package security

import "github.com/evocrew/evocrew/internal/apperr"

func errUnauthenticated(format string, args ...any) error {
	return apperr.New(apperr.Unauthenticated, format, args...)
}

func errForbidden(format string, args ...any) error {
	return apperr.New(apperr.Forbidden, format, args...)
}

func errRateLimited(format string, args ...any) error {
	return apperr.New(apperr.RateLimited, format, args...)
}

func errInvalidArgument(format string, args ...any) error {
	return apperr.New(apperr.InvalidArgument, format, args...)
}
