package mail

type MailSender interface {
	SendMail(to string, subject string, body string) error
}
