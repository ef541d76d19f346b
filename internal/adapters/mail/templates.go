package mail

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
)

// Template names accepted by Send.
const (
	TemplateVerifyEmail     = "verify-email"
	TemplatePasswordReset   = "password-reset"
	TemplateAccountLocked   = "account-locked"
	TemplatePasswordChanged = "password-changed"
)

type template struct {
	subject string
	text    *texttemplate.Template
	html    *htmltemplate.Template
}

type rendered struct {
	Subject string
	Text    string
	HTML    string
}

const htmlLayoutHead = `<!DOCTYPE html><html><head><meta charset="utf-8"></head>` +
	`<body style="font-family: Arial, sans-serif; color: #333; line-height: 1.6;">` +
	`<div style="max-width: 600px; margin: 0 auto; padding: 20px;">`

const htmlLayoutTail = `<p style="margin-top: 20px; font-size: 12px; color: #6b7280;">` +
	`If you did not request this, you can ignore this message.</p></div></body></html>`

var templates = map[string]template{
	TemplateVerifyEmail: newTemplate(
		"Verify your email address",
		"Hi {{.name}},\n\nConfirm your email address by opening the link below:\n{{.link}}\n\nThe link expires in {{.expires_in}}.\n",
		`<p>Hi {{.name}},</p><p>Confirm your email address by opening the link below:</p>`+
			`<p><a href="{{.link}}">Verify email</a></p><p>The link expires in {{.expires_in}}.</p>`,
	),
	TemplatePasswordReset: newTemplate(
		"Reset your password",
		"Hi {{.name}},\n\nA password reset was requested for your account. Open the link below to choose a new password:\n{{.link}}\n\nThe link expires in {{.expires_in}}.\n",
		`<p>Hi {{.name}},</p><p>A password reset was requested for your account.</p>`+
			`<p><a href="{{.link}}">Choose a new password</a></p><p>The link expires in {{.expires_in}}.</p>`,
	),
	TemplateAccountLocked: newTemplate(
		"Your account has been locked",
		"Hi {{.name}},\n\nYour account was locked after repeated failed sign-in attempts. You can try again after {{.locked_until}}.\nIf this was not you, reset your password:\n{{.link}}\n",
		`<p>Hi {{.name}},</p><p>Your account was locked after repeated failed sign-in attempts.</p>`+
			`<p>You can try again after <strong>{{.locked_until}}</strong>.</p>`+
			`<p>If this was not you, <a href="{{.link}}">reset your password</a>.</p>`,
	),
	TemplatePasswordChanged: newTemplate(
		"Your password was changed",
		"Hi {{.name}},\n\nThe password for your account was changed and every active session was signed out.\nIf you did not make this change, reset your password immediately:\n{{.link}}\n",
		`<p>Hi {{.name}},</p><p>The password for your account was changed and every active session was signed out.</p>`+
			`<p>If you did not make this change, <a href="{{.link}}">reset your password</a> immediately.</p>`,
	),
}

func newTemplate(subject, text, html string) template {
	return template{
		subject: subject,
		text:    texttemplate.Must(texttemplate.New("text").Option("missingkey=zero").Parse(text)),
		html:    htmltemplate.Must(htmltemplate.New("html").Option("missingkey=zero").Parse(htmlLayoutHead + html + htmlLayoutTail)),
	}
}

func render(name string, data map[string]any) (rendered, error) {
	tpl, ok := templates[name]
	if !ok {
		return rendered{}, fmt.Errorf("unknown mail template %q", name)
	}
	var text, html bytes.Buffer
	if err := tpl.text.Execute(&text, data); err != nil {
		return rendered{}, fmt.Errorf("render %s text: %w", name, err)
	}
	if err := tpl.html.Execute(&html, data); err != nil {
		return rendered{}, fmt.Errorf("render %s html: %w", name, err)
	}
	return rendered{Subject: tpl.subject, Text: text.String(), HTML: html.String()}, nil
}
