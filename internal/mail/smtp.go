package mail

import (
	"gopkg.in/gomail.v2"
)

type SMTPMailSender struct {
	dialer *gomail.Dialer
	from   string
}

func (s *SMTPMailSender) SendMail(to string, subject string, body string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", s.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)
	return s.dialer.DialAndSend(msg)
}

func NewSMTPMailSender(dialer *gomail.Dialer, from string) MailSender {
	return &SMTPMailSender{
		dialer: dialer,
		from:   from,
	}
}
