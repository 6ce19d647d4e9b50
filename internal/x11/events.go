package x11

import (
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgbutil/xevent"
)

// Pump reads X events on its own goroutine and hands them over in bursts.
// After signalling Ready it waits until the consumer has called Drain, so
// every burst is processed as a unit on the consumer's goroutine.
type Pump struct {
	c      *Connection
	ready  chan struct{}
	resume chan struct{}
	done   chan struct{}
	closed chan struct{}
	once   sync.Once
}

// StartPump begins reading events
func (c *Connection) StartPump() *Pump {
	p := &Pump{
		c:      c,
		ready:  make(chan struct{}),
		resume: make(chan struct{}),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *Pump) run() {
	defer close(p.closed)
	conn := p.c.XUtil.Conn()
	for {
		// block for the first event, then take whatever else is buffered
		ev, err := conn.WaitForEvent()
		if ev == nil && err == nil {
			p.c.logger.Warn("X connection closed")
			return
		}
		xevent.Enqueue(p.c.XUtil, ev, err)
		for {
			ev, err := conn.PollForEvent()
			if ev == nil && err == nil {
				break
			}
			xevent.Enqueue(p.c.XUtil, ev, err)
		}

		select {
		case p.ready <- struct{}{}:
		case <-p.done:
			return
		}
		select {
		case <-p.resume:
		case <-p.done:
			return
		}
	}
}

// Ready fires once a burst is queued
func (p *Pump) Ready() <-chan struct{} {
	return p.ready
}

// Closed is closed when the reader stops, e.g. because the server went away
func (p *Pump) Closed() <-chan struct{} {
	return p.closed
}

// Drain dequeues the pending burst and lets the reader continue. X errors
// in the burst go to the connection's error handler.
func (p *Pump) Drain() []xgb.Event {
	var events []xgb.Event
	for !xevent.Empty(p.c.XUtil) {
		ev, err := xevent.Dequeue(p.c.XUtil)
		if err != nil {
			xevent.ErrorHandlerGet(p.c.XUtil)(err)
			continue
		}
		if ev != nil {
			events = append(events, ev)
		}
	}

	select {
	case p.resume <- struct{}{}:
	case <-p.done:
	case <-p.closed:
	}
	return events
}

// Stop ends the reader goroutine. It does not close the connection.
func (p *Pump) Stop() {
	p.once.Do(func() { close(p.done) })
}
