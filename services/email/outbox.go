package emailsvc

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/labportal/core"
)

// Sender delivers one rendered message.
type Sender interface {
	Send(msg core.EmailMessage) error
}

// Outbox is a bounded, at-most-once delivery queue drained by a fixed pool of workers.
// A message that does not fit in the queue is dropped and logged; failed sends are not retried.
type Outbox struct {
	sender Sender
	logger core.Logger
	queue  chan *core.EmailMessage
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

var _ core.EmailService = (*Outbox)(nil)

func NewOutbox(sender Sender, conf *core.Config, logger core.Logger) *Outbox {
	size, workers := conf.Mail.OutboxSize, conf.Mail.Workers
	if size < 1 {
		size = 1
	}
	if workers < 1 {
		workers = 1
	}

	ob := &Outbox{
		sender: sender,
		logger: logger,
		queue:  make(chan *core.EmailMessage, size),
	}
	ob.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go ob.work()
	}
	return ob
}

func (ob *Outbox) SendMessages(messages ...*core.EmailMessage) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	for _, msg := range messages {
		if ob.closed {
			ob.logger.Warn(fmt.Sprintf("outbox closed: email %q dropped", msg.Subject))
			continue
		}
		select {
		case ob.queue <- msg:
		default:
			ob.logger.Error(fmt.Sprintf("outbox full: email %q dropped", msg.Subject))
		}
	}
}

func (ob *Outbox) work() {
	defer ob.wg.Done()
	for msg := range ob.queue {
		deliver(ob.sender, ob.logger, msg)
	}
}

// Close stops accepting messages and waits for the queued ones to be delivered.
func (ob *Outbox) Close() {
	ob.mu.Lock()
	if ob.closed {
		ob.mu.Unlock()
		return
	}
	ob.closed = true
	close(ob.queue)
	ob.mu.Unlock()

	ob.wg.Wait()
}

// deliver renders msg and hands it to the sender. Errors are logged, never returned.
func deliver(sender Sender, logger core.Logger, msg *core.EmailMessage) {
	if err := msg.Render(); err != nil {
		logger.Error(fmt.Sprintf("rendering email %q: %v", msg.Subject, err), err)
		return
	}
	if !msg.HasRecipients() || !msg.HasContent() {
		return
	}
	if err := sender.Send(*msg); err != nil {
		err = errors.Wrap(err, "sending email")
		logger.Error(fmt.Sprintf("%v", err), err)
	}
}
