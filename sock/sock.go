// Package sock provides a thin stream-socket endpoint: listen/accept/
// read/write plus bounded-timeout readiness probes (selread/selwrite) used
// for non-blocking accept polling and non-blocking send gating.
/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package sock

import (
	"errors"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/ljwoods2/imdbridge/cmn/cos"
	"golang.org/x/sys/unix"
)

// ErrIOError is the synthetic error returned on any unexpected stream
// failure other than EINTR, matching the wire.IOErr message type's role.
var ErrIOError = errors.New("sock: IOERROR")

// Endpoint wraps a single TCP listener or connection.
type Endpoint struct {
	ln   net.Listener
	conn *net.TCPConn
}

// Listen opens a listening socket on the given port. Port-range validation
// is the caller's responsibility (bridge.Validate), not this package's.
func Listen(port int) (*Endpoint, error) {
	ln, err := net.Listen("tcp", fmt_addr(port))
	if err != nil {
		return nil, err
	}
	return &Endpoint{ln: ln}, nil
}

func fmt_addr(port int) string {
	return net.JoinHostPort("", strconv.Itoa(port))
}

// Accept blocks until a client connects.
func (e *Endpoint) Accept() (*Endpoint, error) {
	c, err := e.ln.Accept()
	if err != nil {
		return nil, err
	}
	tc, ok := c.(*net.TCPConn)
	if !ok {
		c.Close()
		return nil, errors.New("sock: unexpected conn type")
	}
	return &Endpoint{conn: tc}, nil
}

// SelAccept probes accept-readiness for up to timeout (0 = poll, don't
// block) and accepts if a connection is pending. ok=false, err=nil means
// "nothing pending".
func (e *Endpoint) SelAccept(timeout time.Duration) (client *Endpoint, ok bool, err error) {
	ready, err := e.selectFD(e.listenerFD(), timeout, false)
	if err != nil || !ready {
		return nil, false, err
	}
	client, err = e.Accept()
	if err != nil {
		return nil, false, err
	}
	return client, true, nil
}

// Read fills b completely, looping on EINTR and short reads. EOF is treated
// as end-of-data (io.EOF returned); any other unexpected errno becomes
// ErrIOError.
func (e *Endpoint) Read(b []byte) (int, error) {
	total := 0
	for total < len(b) {
		n, err := e.conn.Read(b[total:])
		total += n
		if err != nil {
			if cos.IsErrEINTR(err) {
				continue
			}
			if errors.Is(err, io.EOF) {
				return total, io.EOF
			}
			return total, ErrIOError
		}
	}
	return total, nil
}

// Write drains b completely, with the same EINTR/IOERROR policy as Read.
func (e *Endpoint) Write(b []byte) (int, error) {
	total := 0
	for total < len(b) {
		n, err := e.conn.Write(b[total:])
		total += n
		if err != nil {
			if cos.IsErrEINTR(err) {
				continue
			}
			return total, ErrIOError
		}
	}
	return total, nil
}

// SelRead probes read-readiness for up to timeout (0 = poll only).
func (e *Endpoint) SelRead(timeout time.Duration) (bool, error) {
	fd, err := e.connFD()
	if err != nil {
		return false, err
	}
	return e.selectFD(fd, timeout, false)
}

// SelWrite probes write-readiness for up to timeout (0 = poll only).
func (e *Endpoint) SelWrite(timeout time.Duration) (bool, error) {
	fd, err := e.connFD()
	if err != nil {
		return false, err
	}
	return e.selectFD(fd, timeout, true)
}

func (e *Endpoint) connFD() (int, error) {
	raw, err := e.conn.SyscallConn()
	if err != nil {
		return -1, err
	}
	var fd int
	cerr := raw.Control(func(f uintptr) { fd = int(f) })
	if cerr != nil {
		return -1, cerr
	}
	return fd, nil
}

func (e *Endpoint) listenerFD() int {
	// net.TCPListener satisfies syscall.Conn; extract fd the same way as connFD.
	tl, ok := e.ln.(*net.TCPListener)
	if !ok {
		return -1
	}
	raw, err := tl.SyscallConn()
	if err != nil {
		return -1
	}
	var fd int
	raw.Control(func(f uintptr) { fd = int(f) })
	return fd
}

// selectFD polls a single fd for read or write readiness with a bounded
// timeout, retrying transparently on EINTR. A zero timeout means "poll, do
// not block".
func (e *Endpoint) selectFD(fd int, timeout time.Duration, forWrite bool) (bool, error) {
	if fd < 0 {
		return false, errors.New("sock: invalid fd")
	}
	events := int16(unix.POLLIN)
	if forWrite {
		events = unix.POLLOUT
	}
	ms := int(timeout / time.Millisecond)
	for {
		fds := []unix.PollFd{{Fd: int32(fd), Events: events}}
		n, err := unix.Poll(fds, ms)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return false, ErrIOError
		}
		if n == 0 {
			return false, nil
		}
		return fds[0].Revents&events != 0, nil
	}
}

// Shutdown half-closes the connection (if any), signaling EOF to the peer.
func (e *Endpoint) Shutdown() error {
	if e.conn != nil {
		return e.conn.CloseWrite()
	}
	return nil
}

// Destroy closes the underlying listener or connection.
func (e *Endpoint) Destroy() error {
	if e.conn != nil {
		return e.conn.Close()
	}
	if e.ln != nil {
		return e.ln.Close()
	}
	return nil
}
