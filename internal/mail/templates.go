package mail

import (
	"bytes"
	htmltemplate "html/template"
	"net/url"
	"strconv"
	"strings"
	texttemplate "text/template"
	"time"
)

const passwordResetSubject = "Reset your CampusNotes password"

var passwordResetHTML = htmltemplate.Must(htmltemplate.New("reset.html").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #1f2937;">
  <h2>Password reset</h2>
  <p>Hi {{.Name}},</p>
  <p>We received a request to reset the password of your CampusNotes account.</p>
  <p><a href="{{.Link}}" style="background:#2563eb;color:#fff;padding:10px 18px;border-radius:6px;text-decoration:none;">Reset password</a></p>
  <p>Or paste this link into your browser:<br>{{.Link}}</p>
  <p>This link expires in {{.Expiry}}. If you did not ask for a reset you can ignore this email.</p>
</body>
</html>
`))

var passwordResetText = texttemplate.Must(texttemplate.New("reset.txt").Parse(`Hi {{.Name}},

We received a request to reset the password of your CampusNotes account.
Open the link below to choose a new password:

{{.Link}}

This link expires in {{.Expiry}}. If you did not ask for a reset you can ignore this email.
`))

type resetData struct {
	Name   string
	Link   string
	Expiry string
}

// ResetLink builds the frontend URL that carries a reset token.
func ResetLink(frontendURL, token string) string {
	return strings.TrimRight(frontendURL, "/") + "/reset-password?token=" + url.QueryEscape(token)
}

// PasswordResetEmail renders the reset email for a recipient.
func PasswordResetEmail(to, name, link string, ttl time.Duration) (Message, error) {
	if name == "" {
		name = "there"
	}
	data := resetData{Name: name, Link: link, Expiry: humanDuration(ttl)}

	var html, text bytes.Buffer
	if err := passwordResetHTML.Execute(&html, data); err != nil {
		return Message{}, err
	}
	if err := passwordResetText.Execute(&text, data); err != nil {
		return Message{}, err
	}
	return Message{
		To:      to,
		Subject: passwordResetSubject,
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d >= time.Minute:
		return plural(int(d/time.Minute), "minute")
	default:
		return plural(int(d/time.Second), "second")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}
