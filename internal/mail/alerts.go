package mail

import (
	"fmt"
	"log/slog"
	"net/url"
)

// RefreshAlertNotifier mails the operator when a tenant's refresh token is
// rejected, since the tenant stays broken until a human re-runs the
// authorization handshake.
type RefreshAlertNotifier struct {
	sender   MailSender
	operator string
	baseURL  string
}

func NewRefreshAlertNotifier(sender MailSender, operator string, baseURL string) *RefreshAlertNotifier {
	return &RefreshAlertNotifier{
		sender:   sender,
		operator: operator,
		baseURL:  baseURL,
	}
}

func (n *RefreshAlertNotifier) NotifyRefreshRejected(tenantKey string, cause error) {
	authorizeURL := fmt.Sprintf("%s/authorize?tenant=%s", n.baseURL, url.QueryEscape(tenantKey))
	subject := fmt.Sprintf("bexgate: tenant %s needs re-authorization", tenantKey)
	body := fmt.Sprintf(
		"The bexio refresh token for tenant %q was rejected:\n\n    %v\n\n"+
			"Requests for this tenant will fail until the authorization handshake is repeated:\n\n    %s\n",
		tenantKey, cause, authorizeURL)

	if err := n.sender.SendMail(n.operator, subject, body); err != nil {
		slog.Error("Could not send re-authorization alert", "tenant", tenantKey, "error", err)
	}
}
