package service

import (
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/sakif/blog-api/internal/apperror"
	"github.com/sakif/blog-api/internal/auth"
)

// Validation limits.
const (
	MinPasswordLength = 5
	MinFullNameLength = 3
	MinTitleLength    = 3
	MinTextLength     = 3
	MaxTags           = 100
	MaxCommentLength  = 2000
)

// fieldErrors collects every invalid field of one request so the client sees
// them all at once instead of fixing them one round trip at a time.
type fieldErrors []apperror.FieldError

func (f *fieldErrors) add(field, format string, args ...any) {
	*f = append(*f, apperror.FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (f fieldErrors) err() error {
	return apperror.Invalid(f...)
}

// normalizeEmail trims and lowercases, so lookups do not depend on how the
// user typed their address.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func checkEmail(errs *fieldErrors, email string) {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		errs.add("email", "invalid email format")
	}
}

func checkPassword(errs *fieldErrors, password string) {
	switch {
	case len(password) < MinPasswordLength:
		errs.add("password", "password must be at least %d characters", MinPasswordLength)
	case len(password) > auth.MaxPasswordBytes:
		errs.add("password", "password must be at most %d bytes", auth.MaxPasswordBytes)
	}
}

func checkMinLength(errs *fieldErrors, field, value string, n int) {
	if utf8.RuneCountInString(value) < n {
		errs.add(field, "%s must be at least %d characters", field, n)
	}
}

// checkAbsoluteURL accepts only http(s) URLs with a host.
func checkAbsoluteURL(errs *fieldErrors, field, raw string) {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs.add(field, "%s must be an absolute http(s) URL", field)
	}
}

// cleanTags trims every tag and rejects empty ones. Order and duplicates are
// kept as given: tags are an ordered sequence.
func cleanTags(errs *fieldErrors, tags []string) []string {
	if len(tags) > MaxTags {
		errs.add("tags", "at most %d tags are allowed", MaxTags)
		return nil
	}

	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			errs.add("tags", "tags must not be empty")
			return nil
		}
		out = append(out, t)
	}
	return out
}
