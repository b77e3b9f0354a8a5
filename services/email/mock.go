package emailsvc

import (
	"sync"

	"github.com/trezcool/labportal/core"
)

// ServiceMock renders and records messages synchronously; nothing is sent.
// Messages are recorded even when no template could render them.
// When Err is set every send fails the way a broken mail provider would.
type ServiceMock struct {
	Err error

	logger core.Logger
	mu     sync.Mutex
	sent   []core.EmailMessage
}

var _ core.EmailService = (*ServiceMock)(nil)

func NewServiceMock(logger core.Logger) *ServiceMock {
	return &ServiceMock{logger: logger}
}

func (svc *ServiceMock) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		if err := msg.Render(); err != nil {
			svc.logger.Error("rendering email: "+err.Error(), err)
		}
		if !msg.HasRecipients() {
			continue
		}
		if err := svc.Send(*msg); err != nil {
			svc.logger.Error("sending email: "+err.Error(), err)
		}
	}
}

func (svc *ServiceMock) Send(msg core.EmailMessage) error {
	if svc.Err != nil {
		return svc.Err
	}
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.sent = append(svc.sent, msg)
	return nil
}

// SentMessages returns a copy of the messages sent so far.
func (svc *ServiceMock) SentMessages() []core.EmailMessage {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return append([]core.EmailMessage(nil), svc.sent...)
}

func (svc *ServiceMock) Reset() {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.sent = nil
}
