package service

import (
	"fmt"
	"html"
	"net/url"
	"strings"

	"github.com/iliyamo/shipping-auth/internal/mail"
)

const (
	templateVerify = "verify"
	templateReset  = "reset"
)

func (s *AuthService) link(path, param, raw string) string {
	return strings.TrimRight(s.opts.BaseURL, "/") + path + "?" + param + "=" + url.QueryEscape(raw)
}

func verificationMessage(to, link string) mail.Message {
	return mail.Message{
		To:      to,
		Subject: "Confirm your email address",
		HTML: fmt.Sprintf(`<p>Welcome!</p>
<p>Please confirm your email address by following the link below. The link expires in one hour.</p>
<p><a href="%[1]s">%[1]s</a></p>`, html.EscapeString(link)),
	}
}

func resetMessage(to, link string) mail.Message {
	return mail.Message{
		To:      to,
		Subject: "Reset your password",
		HTML: fmt.Sprintf(`<p>We received a request to reset your password.</p>
<p>Follow the link below to choose a new one. The link expires in one hour. If you did not ask for this, ignore this email.</p>
<p><a href="%[1]s">%[1]s</a></p>`, html.EscapeString(link)),
	}
}
