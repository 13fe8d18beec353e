package bus

import (
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// DefaultSubject is the NATS subject the scheduler serves on.
const DefaultSubject = "jobshop.scheduler"

// ServeNATS subscribes the handler on a subject, answering each request
// message with the handler's reply.
func ServeNATS(nc *nats.Conn, subject string, h Handler) (*nats.Subscription, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
		if err := msg.Respond(h.Handle(msg.Data)); err != nil {
			logrus.Warnf("bus: respond on %s failed: %v", subject, err)
		}
	})
	if err != nil {
		return nil, err
	}
	logrus.Infof("bus: serving scheduler requests on %q", subject)
	return sub, nil
}

// NATSRequester issues requests over a NATS connection.
type NATSRequester struct {
	nc      *nats.Conn
	subject string
}

// DialNATS connects to a NATS server and returns a requester on the subject.
func DialNATS(url, subject string) (*NATSRequester, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, err
	}
	return &NATSRequester{nc: nc, subject: subject}, nil
}

func (r *NATSRequester) Request(payload []byte, timeout time.Duration) ([]byte, error) {
	msg, err := r.nc.Request(r.subject, payload, timeout)
	if err != nil {
		return nil, err
	}
	return msg.Data, nil
}

func (r *NATSRequester) Close() error {
	r.nc.Close()
	return nil
}
