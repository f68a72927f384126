package emailsvc

import (
	"context"
	"net/mail"
	"testing"

	"github.com/mrz1836/postmark"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/findclassnz/findclass/core"
	logsvc "github.com/findclassnz/findclass/services/logger"
)

func TestMain(m *testing.M) {
	// rollbar keeps a package level transport running
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("github.com/rollbar/rollbar-go.NewAsyncTransport.func1"))
}

func testConf() *core.Config {
	return &core.Config{
		AppName:             "FindClass",
		DefaultFromEmail:    mail.Address{Name: "FindClass", Address: "noreply@findclass.nz"},
		SupportEmail:        "support@findclass.nz",
		PostmarkServerToken: "server-token",
	}
}

func codeMessage(to string) *core.EmailMessage {
	return &core.EmailMessage{
		To:           []mail.Address{{Name: "Ana", Address: to}},
		Subject:      "Verify your email",
		Tag:          "verification",
		TemplateName: "verification_code",
		TemplateData: map[string]interface{}{"Name": "Ana", "Code": "123456", "ExpiresIn": 10},
	}
}

func TestConsoleService(t *testing.T) {
	ResetSentMessages()
	svc := NewConsoleService(testConf(), logsvc.NewNopLogger())
	svc.(*consoleService).disableOutput = true

	svc.SendMessages(codeMessage("ana@findclass.nz"), codeMessage("bo@findclass.nz"), &core.EmailMessage{Subject: "no recipients", BodyStr: "hi"})
	svc.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, SentMessages, 2)
	for _, msg := range SentMessages {
		assert.Contains(t, msg.TextContent, "123456")
		assert.Contains(t, msg.HTMLContent, "123456")
	}
}

func TestConsoleServiceMock(t *testing.T) {
	ResetSentMessages()
	svc := NewConsoleServiceMock(testConf(), logsvc.NewNopLogger())

	svc.SendMessages(&core.EmailMessage{To: []mail.Address{{Address: "ana@findclass.nz"}}, Subject: "Hi", BodyStr: "Kia ora"})

	msg, ok := LastSentMessage()
	require.True(t, ok, "sent synchronously")
	assert.Equal(t, "Kia ora", msg.TextContent)
	assert.Empty(t, msg.HTMLContent)
}

type mockPostmarkClient struct {
	mock.Mock
}

func (m *mockPostmarkClient) SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(postmark.EmailResponse), args.Error(1)
}

func TestPostmarkService(t *testing.T) {
	client := new(mockPostmarkClient)
	svc, err := NewPostmarkService(testConf(), logsvc.NewNopLogger(), client)
	require.NoError(t, err)

	client.On("SendEmail", mock.Anything, mock.MatchedBy(func(e postmark.Email) bool {
		return e.To == `"Ana" <ana@findclass.nz>` && e.Subject == "[FindClass] Verify your email" &&
			e.Tag == "verification" && e.ReplyTo == "support@findclass.nz" && e.HTMLBody != "" && e.TextBody != ""
	})).Return(postmark.EmailResponse{}, nil).Once()
	client.On("SendEmail", mock.Anything, mock.Anything).Return(postmark.EmailResponse{}, errors.New("unreachable")).Once()

	svc.SendMessages(codeMessage("ana@findclass.nz"))
	svc.Wait()
	svc.SendMessages(codeMessage("bo@findclass.nz"))
	svc.Wait()

	client.AssertExpectations(t)
}

func TestNewService(t *testing.T) {
	conf := testConf()
	logger := logsvc.NewNopLogger()

	for backend, wantErr := range map[string]bool{"": false, BackendConsole: false, BackendSendgrid: false, BackendPostmark: false, "pigeon": true} {
		conf.EmailBackend = backend
		_, err := NewService(conf, logger)
		assert.Equal(t, wantErr, err != nil, backend)
	}

	conf.EmailBackend = BackendPostmark
	conf.PostmarkServerToken = ""
	_, err := NewService(conf, logger)
	assert.Error(t, err)
}
