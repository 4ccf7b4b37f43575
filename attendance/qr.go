/*
qr.go - QR token format and validation

PURPOSE:
  A scan carries the text of the QR code printed or displayed at the shop.
  The token names the tenant it belongs to; in dynamic mode it also carries
  the instant it was issued so a photo of yesterday's code is useless.

WIRE FORMAT:
  STAFFQR;tenantId=<id>;tenantName=<name>[;ts=<unix millis>]

  First field is the fixed marker. The rest are key=value pairs; unknown keys
  are ignored, order does not matter.

VALIDATION ORDER:
  1. Marker or field format wrong, tenantId/tenantName missing,
     ts not an integer                          → core.ErrMalformedToken
  2. tenantId differs from the employee's tenant → core.ErrWrongTenant
  3. Tenant runs dynamic mode:
       ts missing                               → core.ErrExpiredOrWrongModeToken
       (now - ts) / 1000 > 20 seconds           → core.ErrTokenExpired
  4. Permanent mode: no freshness check.

FRESHNESS WINDOW:
  Displays regenerate the dynamic token every RefreshInterval (15s).
  MaxTokenAge (20s) is one refresh interval plus a 5s buffer for clock skew
  and network latency. A ts in the future is accepted.
*/
package attendance

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/warp/staff-engine/core"
)

const (
	// TokenMarker is the first field of every token.
	TokenMarker = "STAFFQR"

	// RefreshInterval is how often a dynamic display issues a new token.
	RefreshInterval = 15 * time.Second

	// MaxTokenAge is the oldest dynamic token a scan accepts.
	MaxTokenAge = 20 * time.Second
)

// Token is a parsed QR payload.
type Token struct {
	TenantID   string
	TenantName string
	// IssuedAtMillis is set for dynamic tokens only.
	IssuedAtMillis *int64
}

// =============================================================================
// TOKEN ERROR
// =============================================================================

// TokenError is a rejected scan. Err is one of the core QR sentinels.
type TokenError struct {
	Err    error
	Detail string
}

func (e *TokenError) Error() string {
	if e.Detail == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Detail)
}

func (e *TokenError) Unwrap() error { return e.Err }

// Code is the machine-readable rejection reason reported to scanners.
func (e *TokenError) Code() string {
	switch {
	case errors.Is(e.Err, core.ErrWrongTenant):
		return "wrong_tenant"
	case errors.Is(e.Err, core.ErrTokenExpired):
		return "token_expired"
	case errors.Is(e.Err, core.ErrExpiredOrWrongModeToken):
		return "expired_or_wrong_mode"
	default:
		return "malformed_token"
	}
}

func malformed(format string, args ...any) error {
	return &TokenError{Err: core.ErrMalformedToken, Detail: fmt.Sprintf(format, args...)}
}

// =============================================================================
// PARSE / VALIDATE / ISSUE
// =============================================================================

// ParseToken checks the format only. Tenant and freshness are ValidateToken's job.
func ParseToken(raw string) (Token, error) {
	fields := strings.Split(strings.TrimSpace(raw), ";")
	if len(fields) == 0 || fields[0] != TokenMarker {
		return Token{}, malformed("missing %s marker", TokenMarker)
	}

	var tok Token
	for _, field := range fields[1:] {
		key, value, ok := strings.Cut(field, "=")
		if !ok || key == "" {
			return Token{}, malformed("field %q is not key=value", field)
		}
		switch key {
		case "tenantId":
			tok.TenantID = value
		case "tenantName":
			tok.TenantName = value
		case "ts":
			ms, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return Token{}, malformed("ts %q is not an integer", value)
			}
			tok.IssuedAtMillis = &ms
		}
	}

	if tok.TenantID == "" {
		return Token{}, malformed("tenantId missing")
	}
	if tok.TenantName == "" {
		return Token{}, malformed("tenantName missing")
	}
	return tok, nil
}

// ValidateToken applies the validation rules in order and returns the
// token's tenant ID. It has no side effects.
func ValidateToken(raw, employeeTenantID string, mode core.QRMode, now time.Time) (string, error) {
	tok, err := ParseToken(raw)
	if err != nil {
		return "", err
	}

	if tok.TenantID != employeeTenantID {
		return "", &TokenError{Err: core.ErrWrongTenant, Detail: fmt.Sprintf("token tenant %s", tok.TenantID)}
	}

	if mode == core.QRModeDynamic {
		if tok.IssuedAtMillis == nil {
			return "", &TokenError{Err: core.ErrExpiredOrWrongModeToken, Detail: "dynamic mode requires ts"}
		}
		age := float64(now.UnixMilli()-*tok.IssuedAtMillis) / 1000
		if age > MaxTokenAge.Seconds() {
			return "", &TokenError{Err: core.ErrTokenExpired, Detail: fmt.Sprintf("age %.1fs", age)}
		}
	}

	return tok.TenantID, nil
}

// IssueToken renders the token a tenant's display shows at now. Dynamic
// tenants get a ts field.
func IssueToken(t core.Tenant, now time.Time) string {
	name := strings.ReplaceAll(t.Name, ";", ",")
	if name == "" {
		name = t.ID
	}

	var b strings.Builder
	b.WriteString(TokenMarker)
	b.WriteString(";tenantId=")
	b.WriteString(t.ID)
	b.WriteString(";tenantName=")
	b.WriteString(name)
	if t.QRMode == core.QRModeDynamic {
		b.WriteString(";ts=")
		b.WriteString(strconv.FormatInt(now.UnixMilli(), 10))
	}
	return b.String()
}
