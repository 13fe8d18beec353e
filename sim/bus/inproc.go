package bus

import "time"

// InprocBus serves requests against a handler in the same process. It is the
// transport used when the negotiation runtime is co-located with the engine,
// and in tests.
type InprocBus struct {
	handler Handler
}

// NewInprocBus wraps a handler as a Requester.
func NewInprocBus(h Handler) *InprocBus {
	return &InprocBus{handler: h}
}

func (b *InprocBus) Request(payload []byte, timeout time.Duration) ([]byte, error) {
	return b.handler.Handle(payload), nil
}

func (b *InprocBus) Close() error { return nil }
