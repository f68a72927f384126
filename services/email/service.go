package emailsvc

import (
	"net/mail"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/findclassnz/findclass/core"
)

// Email backends
const (
	BackendConsole  = "console"
	BackendSendgrid = "sendgrid"
	BackendPostmark = "postmark"
)

// NewService returns the email service of the configured backend.
func NewService(conf *core.Config, logger core.Logger) (core.EmailService, error) {
	switch conf.EmailBackend {
	case BackendConsole, "":
		return NewConsoleService(conf, logger), nil
	case BackendSendgrid:
		return NewSendgridService(conf, logger), nil
	case BackendPostmark:
		return NewPostmarkService(conf, logger)
	}
	return nil, errors.Errorf("unknown email backend %q", conf.EmailBackend)
}

// sender renders and sends messages in background goroutines, that Wait waits for.
type sender struct {
	subjPrefix string
	logger     core.Logger
	wg         sync.WaitGroup
	deliver    func(msg core.EmailMessage) error
}

func newSender(conf *core.Config, logger core.Logger, deliver func(msg core.EmailMessage) error) *sender {
	return &sender{
		subjPrefix: "[" + conf.AppName + "] ",
		logger:     logger,
		deliver:    deliver,
	}
}

func (s *sender) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		s.wg.Add(1)
		go func(msg *core.EmailMessage) {
			defer s.wg.Done()
			s.sendMessage(msg)
		}(msg)
	}
}

func (s *sender) Wait() { s.wg.Wait() }

func (s *sender) sendMessage(msg *core.EmailMessage) {
	if err := msg.Render(); err != nil {
		s.logger.Error("rendering email", errors.Wrap(err, msg.TemplateName))
		return
	}
	if !msg.HasRecipients() || !msg.HasContent() {
		return
	}
	if err := s.deliver(*msg); err != nil {
		s.logger.Error("sending email", err, map[string]interface{}{"subject": msg.Subject, "tag": msg.Tag})
	}
}

func joinAddresses(addrs []mail.Address) string {
	toJoin := make([]string, 0, len(addrs))
	for _, a := range addrs {
		toJoin = append(toJoin, a.String())
	}
	return strings.Join(toJoin, ", ")
}
