package notification

import (
	"bytes"
	"fmt"
	htmlTemplate "html/template"
	textTemplate "text/template"
)

type emailTemplate struct {
	subject *textTemplate.Template
	text    *textTemplate.Template
	html    *htmlTemplate.Template
}

func mustEmail(name, subject, text, html string) emailTemplate {
	return emailTemplate{
		subject: textTemplate.Must(textTemplate.New(name + "_subject").Parse(subject)),
		text:    textTemplate.Must(textTemplate.New(name + "_text").Parse(text)),
		html:    htmlTemplate.Must(htmlTemplate.New(name + "_html").Parse(html)),
	}
}

var emailTemplates = map[Template]emailTemplate{
	TemplateRenewalReminder: mustEmail(string(TemplateRenewalReminder),
		`Your {{.plan_name}} plan renews in {{.days_remaining}} day(s)`,
		"Your {{.plan_name}} subscription renews on {{.renewal_date}} ({{.days_remaining}} day(s) left).\n\n"+
			"{{.amount}} {{.currency}} will be charged to your saved card.\n\n"+
			"Manage your billing at {{.site_url}}/billing\n",
		`<!doctype html><html><body>`+
			`<p>Your <b>{{.plan_name}}</b> subscription renews on {{.renewal_date}} ({{.days_remaining}} day(s) left).</p>`+
			`<p><b>{{.amount}} {{.currency}}</b> will be charged to your saved card.</p>`+
			`<p><a href="{{.site_url}}/billing">Manage billing</a></p></body></html>`,
	),
	TemplateRenewalConfirmation: mustEmail(string(TemplateRenewalConfirmation),
		`Your {{.plan_name}} plan has been renewed`,
		"Thanks! Your {{.plan_name}} subscription ({{.cycle}}) has been renewed.\n\n"+
			"We charged {{.amount}} {{.currency}} to the card ending in {{.last4}}.\n"+
			"Your next renewal is on {{.next_renewal_date}}.\n",
		`<!doctype html><html><body>`+
			`<p>Thanks! Your <b>{{.plan_name}}</b> subscription ({{.cycle}}) has been renewed.</p>`+
			`<p>We charged <b>{{.amount}} {{.currency}}</b> to the card ending in {{.last4}}.</p>`+
			`<p>Your next renewal is on {{.next_renewal_date}}.</p></body></html>`,
	),
	TemplatePaymentFailed: mustEmail(string(TemplatePaymentFailed),
		`Action required: payment for your {{.plan_name}} plan failed`,
		"We could not renew your {{.plan_name}} subscription.\n\n"+
			"Charging {{.amount}} {{.currency}} failed on {{.cards_attempted}} saved card(s).\n"+
			"Please update your payment details at {{.site_url}}/billing to keep your campaigns running.\n",
		`<!doctype html><html><body>`+
			`<p>We could not renew your <b>{{.plan_name}}</b> subscription.</p>`+
			`<p>Charging <b>{{.amount}} {{.currency}}</b> failed on {{.cards_attempted}} saved card(s).</p>`+
			`<p><a href="{{.site_url}}/billing">Update your payment details</a> to keep your campaigns running.</p>`+
			`</body></html>`,
	),
}

// Rendered is a notification ready to be mailed
type Rendered struct {
	Subject string
	Text    string
	HTML    string
}

// Render expands msg with its template. siteURL is made available as .site_url
func Render(msg *Message, siteURL string) (*Rendered, error) {
	tpl, ok := emailTemplates[msg.Template]
	if !ok {
		return nil, fmt.Errorf("unknown notification template %q", msg.Template)
	}
	data := make(map[string]interface{}, len(msg.Data)+1)
	for k, v := range msg.Data {
		data[k] = v
	}
	data["site_url"] = siteURL

	var subject, text, html bytes.Buffer
	if err := tpl.subject.Execute(&subject, data); err != nil {
		return nil, err
	}
	if err := tpl.text.Execute(&text, data); err != nil {
		return nil, err
	}
	if err := tpl.html.Execute(&html, data); err != nil {
		return nil, err
	}
	return &Rendered{
		Subject: subject.String(),
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}
