package ingress

import (
	"context"
	"net"
	"strconv"
	"sync"
	"syscall"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Handler is invoked once per received datagram payload, decoded into a
// UTF-8 line. Handlers may be invoked from the listener's internal
// goroutine; a subscriber must not assume single-threaded invocation
// relative to its own goroutines.
type Handler func(line string)

// Listener is a UDP datagram listener with a subscribe/handle surface:
// one socket bound on INADDR_ANY with SO_REUSEADDR, one internal reader
// goroutine, and a keyed callback table. Every registered handler sees
// every datagram.
type Listener struct {
	conn *net.UDPConn
	port int
	log  *zap.Logger

	mu      sync.Mutex
	subs    map[int]Handler
	nextKey int

	wg      sync.WaitGroup
	started bool
}

// Listen binds a UDP socket on port (INADDR_ANY, SO_REUSEADDR).
func Listen(port int, log *zap.Logger) (*Listener, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var soErr error
			if err := c.Control(func(fd uintptr) {
				soErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
			}); err != nil {
				return err
			}
			return soErr
		},
	}

	pc, err := lc.ListenPacket(context.Background(), "udp4", net.JoinHostPort("", strconv.Itoa(port)))
	if err != nil {
		return nil, errors.Wrapf(err, "ingress: listen udp :%d", port)
	}

	return &Listener{
		conn: pc.(*net.UDPConn),
		port: port,
		log:  log,
		subs: make(map[int]Handler),
	}, nil
}

// Port returns the bound UDP port, which differs from the requested
// one when Listen was given 0 (ephemeral bind, used by tests).
func (l *Listener) Port() int {
	return l.conn.LocalAddr().(*net.UDPAddr).Port
}

// Subscription deregisters its callback on Close. The listener must
// outlive every subscription it issued; Close pins that relationship by
// calling straight back into the issuing listener.
type Subscription struct {
	listener *Listener
	key      int
	once     sync.Once
}

// Close deregisters the subscription's callback. Idempotent.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.listener.mu.Lock()
		delete(s.listener.subs, s.key)
		s.listener.mu.Unlock()
	})
}

// Subscribe registers handle and returns its subscription. The reader
// goroutine starts on the first subscription.
func (l *Listener) Subscribe(handle Handler) *Subscription {
	l.mu.Lock()
	key := l.nextKey
	l.nextKey++
	l.subs[key] = handle
	start := !l.started
	l.started = true
	l.mu.Unlock()

	if start {
		l.wg.Add(1)
		go l.readLoop()
	}
	return &Subscription{listener: l, key: key}
}

func (l *Listener) readLoop() {
	defer l.wg.Done()
	buf := make([]byte, 64*1024)
	for {
		n, _, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			// Close() causes ReadFromUDP to fail; that is the expected
			// exit path, not a failure to report upstream.
			return
		}
		line := string(buf[:n])

		l.mu.Lock()
		handlers := make([]Handler, 0, len(l.subs))
		for _, h := range l.subs {
			handlers = append(handlers, h)
		}
		l.mu.Unlock()

		for _, h := range handlers {
			h(line)
		}
	}
}

// SendQuit fires the loopback "QUIT" datagram used as the in-process
// back-channel: a signal handler sends it to its own port so the reader
// goroutine delivers a Quit event through the ordinary decode path.
func SendQuit(port int) error {
	conn, err := net.Dial("udp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return errors.Wrap(err, "ingress: dial loopback quit")
	}
	defer conn.Close()
	_, err = conn.Write([]byte("QUIT"))
	return errors.Wrap(err, "ingress: send quit datagram")
}

// Close releases the socket and joins the reader goroutine.
func (l *Listener) Close() error {
	err := l.conn.Close()
	l.wg.Wait()
	return err
}
