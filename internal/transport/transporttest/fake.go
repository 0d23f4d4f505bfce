// Package transporttest provides a scripted transport.Client for tests.
package transporttest

import (
	"sync"
	"time"

	"go-pos-hostswitch/internal/transport"
)

// Responder builds the reply to the last message sent. Returning a nil
// slice makes Receive fail with StatusTimeout.
type Responder func(sent []byte) []byte

// Fake records every call and answers Receive through Respond.
type Fake struct {
	mu sync.Mutex

	PreConnectStatus transport.Status
	WaitStatus       transport.Status
	SendStatus       transport.Status
	ShortWrite       bool
	Respond          Responder

	Sent        [][]byte
	PreConnects int
	Waits       int
	Sends       int
	Receives    int
	Disconnects int
}

// New returns a fake whose link comes up and whose sends succeed.
func New(respond Responder) *Fake {
	return &Fake{
		PreConnectStatus: transport.StatusOK,
		WaitStatus:       transport.StatusConnected,
		SendStatus:       transport.StatusOK,
		Respond:          respond,
	}
}

// Factory returns a transport.Factory that always hands out f.
func (f *Fake) Factory() transport.Factory {
	return func(string) transport.Client { return f }
}

func (f *Fake) PreConnect() transport.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PreConnects++
	return f.PreConnectStatus
}

func (f *Fake) WaitConnected(time.Duration) transport.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Waits++
	return f.WaitStatus
}

func (f *Fake) Send(msg []byte) (int, transport.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sends++
	f.Sent = append(f.Sent, append([]byte(nil), msg...))
	if f.ShortWrite {
		return len(msg) - 1, f.SendStatus
	}
	return len(msg), f.SendStatus
}

func (f *Fake) Receive(max int) ([]byte, transport.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Receives++
	if f.Respond == nil || len(f.Sent) == 0 {
		return nil, transport.StatusTimeout
	}
	resp := f.Respond(f.Sent[len(f.Sent)-1])
	if resp == nil {
		return nil, transport.StatusTimeout
	}
	if len(resp) > max {
		return nil, transport.StatusError
	}
	return resp, transport.StatusOK
}

func (f *Fake) Disconnect() transport.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Disconnects++
	return transport.StatusOK
}

// Calls is the total number of calls made on the fake.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.PreConnects + f.Waits + f.Sends + f.Receives + f.Disconnects
}

// Exchanges is the number of messages sent.
func (f *Fake) Exchanges() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Sends
}
