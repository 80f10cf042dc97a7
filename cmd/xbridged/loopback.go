// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package main

import (
	"context"
	"sync"
	"time"

	"github.com/blocknetdx/xbridge-go/xbridge/account"
	"github.com/blocknetdx/xbridge-go/xbridge/packet"
	"github.com/blocknetdx/xbridge-go/xbridge/session"
)

// loopbackTransport is a single-process session.Transport for --demo: every
// packet is queued rather than delivered inline, since a Session holds its
// mutex for the whole of Process and a synchronous call graph risks a
// session recursing into its own in-flight call.
type loopbackTransport struct {
	mu       sync.Mutex
	sessions map[[account.AddrSize]byte]*session.Session
	queue    []loopbackPacket
}

type loopbackPacket struct {
	to  [account.AddrSize]byte
	pkt *packet.Packet
}

func newLoopbackTransport() *loopbackTransport {
	return &loopbackTransport{sessions: map[[account.AddrSize]byte]*session.Session{}}
}

func (lt *loopbackTransport) register(addr [account.AddrSize]byte, s *session.Session) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	lt.sessions[addr] = s
}

func (lt *loopbackTransport) SendTo(addr [account.AddrSize]byte, pkt *packet.Packet) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	lt.queue = append(lt.queue, loopbackPacket{addr, pkt})
}

func (lt *loopbackTransport) Broadcast(pkt *packet.Packet) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	for addr := range lt.sessions {
		lt.queue = append(lt.queue, loopbackPacket{addr, pkt})
	}
}

// run drains the queue until ctx is cancelled, retrying a retry-later
// result on the next pass rather than spinning immediately.
func (lt *loopbackTransport) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		lt.mu.Lock()
		if len(lt.queue) == 0 {
			lt.mu.Unlock()
			select {
			case <-ctx.Done():
				return
			case <-time.After(20 * time.Millisecond):
			}
			continue
		}
		next := lt.queue[0]
		lt.queue = lt.queue[1:]
		s, ok := lt.sessions[next.to]
		lt.mu.Unlock()
		if !ok {
			continue
		}
		if res := s.Process(next.pkt); res.Status == session.RetryLater {
			lt.mu.Lock()
			lt.queue = append(lt.queue, next)
			lt.mu.Unlock()
		}
	}
}
