package broadcast

import (
	"fmt"
	"log"
	"sync"
)

// Sink receives every payload sent to connected clients. Delivery is
// best effort; a sink must not block.
type Sink interface {
	Broadcast(payload string)
}

// Broadcaster fans diagnostic lines out to the local log and to every
// registered sink.
type Broadcaster struct {
	lock   sync.RWMutex
	logger *log.Logger
	sinks  []Sink
}

func New(logger *log.Logger) *Broadcaster {
	return &Broadcaster{
		logger: logger,
	}
}

func (b *Broadcaster) AddSink(sink Sink) {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.sinks = append(b.sinks, sink)
}

// Log writes msg locally and sends it to every sink. An empty message is
// still sent.
func (b *Broadcaster) Log(msg string) {
	if b.logger != nil {
		b.logger.Output(2, msg)
	}
	b.Broadcast(msg)
}

func (b *Broadcaster) Logf(format string, v ...interface{}) {
	b.Log(fmt.Sprintf(format, v...))
}

// Broadcast sends payload to the sinks only.
func (b *Broadcaster) Broadcast(payload string) {
	b.lock.RLock()
	defer b.lock.RUnlock()

	for _, sink := range b.sinks {
		sink.Broadcast(payload)
	}
}
