package emailsvc

import (
	"context"
	"time"

	"github.com/mrz1836/postmark"
	"github.com/pkg/errors"

	"github.com/findclassnz/findclass/core"
)

const postmarkTimeout = 10 * time.Second

// PostmarkClient defines the postmark operations used by postmarkService.
type PostmarkClient interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
}

type postmarkService struct {
	*sender
	client  PostmarkClient
	from    string
	replyTo string
}

var _ core.EmailService = (*postmarkService)(nil)

func NewPostmarkService(conf *core.Config, logger core.Logger, client ...PostmarkClient) (core.EmailService, error) {
	if conf.PostmarkServerToken == "" {
		return nil, errors.New("postmark: server token is required")
	}
	svc := &postmarkService{
		from:    conf.DefaultFromEmail.String(),
		replyTo: conf.SupportEmail,
	}
	if len(client) > 0 {
		svc.client = client[0]
	} else {
		svc.client = postmark.NewClient(conf.PostmarkServerToken, conf.PostmarkAccountToken)
	}
	svc.sender = newSender(conf, logger, svc.send)
	return svc, nil
}

func (svc *postmarkService) prepare(msg core.EmailMessage) postmark.Email {
	return postmark.Email{
		From:       svc.from,
		ReplyTo:    svc.replyTo,
		To:         joinAddresses(msg.To),
		Cc:         joinAddresses(msg.Cc),
		Bcc:        joinAddresses(msg.Bcc),
		Subject:    svc.subjPrefix + msg.Subject,
		Tag:        msg.Tag,
		TextBody:   msg.TextContent,
		HTMLBody:   msg.HTMLContent,
		TrackOpens: true,
		TrackLinks: "HtmlOnly",
	}
}

func (svc *postmarkService) send(msg core.EmailMessage) error {
	ctx, cancel := context.WithTimeout(context.Background(), postmarkTimeout)
	defer cancel()

	res, err := svc.client.SendEmail(ctx, svc.prepare(msg))
	if err != nil {
		return errors.Wrap(err, "calling postmark")
	}
	if res.ErrorCode > 0 {
		return errors.Errorf("postmark error: %d - %s", res.ErrorCode, res.Message)
	}
	return nil
}
