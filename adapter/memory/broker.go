package memory

import (
	"sync"
)

// Broker is an in-process pub/sub hub. Delivery is fire-and-forget: a
// subscriber whose buffer is full misses the message and is not counted.
type Broker struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[*Subscription]struct{})}
}

var defaultBroker = NewBroker()

// DefaultBroker is the process-wide broker used by the registered "memory" transport.
func DefaultBroker() *Broker { return defaultBroker }

// Subscription receives payloads published to one channel.
type Subscription struct {
	broker  *Broker
	channel string
	ch      chan []byte
	once    sync.Once
}

// Subscribe attaches a subscriber with the given buffer (minimum 1).
func (b *Broker) Subscribe(channel string, buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	s := &Subscription{broker: b, channel: channel, ch: make(chan []byte, buffer)}
	b.mu.Lock()
	set, ok := b.subs[channel]
	if !ok {
		set = make(map[*Subscription]struct{})
		b.subs[channel] = set
	}
	set[s] = struct{}{}
	b.mu.Unlock()
	return s
}

// Publish delivers payload to every subscriber of channel and returns how many received it.
func (b *Broker) Publish(channel string, payload []byte) int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var n int64
	for s := range b.subs[channel] {
		select {
		case s.ch <- payload:
			n++
		default:
		}
	}
	return n
}

// Subscribers returns the number of subscribers on channel.
func (b *Broker) Subscribers(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channel])
}

// C is the delivery channel. It is closed by Close.
func (s *Subscription) C() <-chan []byte { return s.ch }

// Close detaches the subscriber.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.broker.mu.Lock()
		if set, ok := s.broker.subs[s.channel]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(s.broker.subs, s.channel)
			}
		}
		close(s.ch)
		s.broker.mu.Unlock()
	})
}
