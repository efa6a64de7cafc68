// Package gateway implements the TCP/UDP mailbox gateway (spec.md §6): a
// listener on port 34980 (0x88A4) that accepts raw frames prefixed by a
// 2-byte header, forwards the payload into the master through hostapi, and
// rewrites the response header with the returned length while preserving
// the request's 5-bit type field. TCP connections are capped and use
// TCP_NODELAY + SO_REUSEADDR; UDP is datagram echo. Frames over 1500 bytes
// are rejected before ever reaching the master.
//
// Grounded on dittofs's portmap server (internal/adapter/nfs/portmap):
// same dual TCP/UDP Serve loop, buffered-channel connection semaphore, and
// shutdown-channel-plus-WaitGroup lifecycle.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/go-ecat/ecmaster/clog"
	"github.com/go-ecat/ecmaster/hostapi"
)

// MaxClients bounds concurrent TCP gateway clients (spec.md §6).
const MaxClients = 16

// MaxFrameSize is the largest frame the gateway accepts, header included.
const MaxFrameSize = 1500

// HeaderSize is the length of the leading length/type header spec.md §6
// describes.
const HeaderSize = 2

// idleTimeout bounds how long a TCP connection may sit between requests
// before the gateway closes it, the same per-iteration deadline dittofs's
// portmap server sets on each read.
const idleTimeout = 5 * time.Second

// Server is the mailbox gateway listener bound to one master, reached
// through hostapi.Client rather than the real mailbox-gateway ioctl.
type Server struct {
	clog.Clog

	client *hostapi.Client
	addr   string

	tcpListener net.Listener
	udpConn     *net.UDPConn

	shutdown      chan struct{}
	shutdownOnce  sync.Once
	wg            sync.WaitGroup
	listenerReady chan struct{}
	connSemaphore chan struct{}
}

// NewServer builds a gateway bound to client, listening on addr (e.g.
// ":34980").
func NewServer(client *hostapi.Client, addr string) *Server {
	return &Server{
		Clog:          clog.NewLogger("gateway: "),
		client:        client,
		addr:          addr,
		shutdown:      make(chan struct{}),
		listenerReady: make(chan struct{}),
		connSemaphore: make(chan struct{}, MaxClients),
	}
}

// Serve binds both listeners and blocks servicing connections until ctx is
// cancelled or Stop is called.
func (s *Server) Serve(ctx context.Context) error {
	lc := listenConfig()
	tcpListener, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("gateway: listen tcp %s: %w", s.addr, err)
	}
	s.tcpListener = tcpListener

	udpAddr, err := net.ResolveUDPAddr("udp", s.addr)
	if err != nil {
		_ = s.tcpListener.Close()
		return fmt.Errorf("gateway: resolve udp %s: %w", s.addr, err)
	}
	udpConn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		_ = s.tcpListener.Close()
		return fmt.Errorf("gateway: listen udp %s: %w", s.addr, err)
	}
	s.udpConn = udpConn

	close(s.listenerReady)
	s.Debug("gateway listening on %s (tcp+udp)", s.addr)

	s.wg.Add(2)
	go s.serveTCP()
	go s.serveUDP()

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.shutdown:
		}
	}()

	s.wg.Wait()
	return nil
}

// WaitReady returns a channel closed once both listeners are bound.
func (s *Server) WaitReady() <-chan struct{} {
	return s.listenerReady
}

// Stop closes both listeners and unblocks Serve.
func (s *Server) Stop() {
	s.shutdownOnce.Do(func() {
		close(s.shutdown)
		if s.tcpListener != nil {
			_ = s.tcpListener.Close()
		}
		if s.udpConn != nil {
			_ = s.udpConn.Close()
		}
	})
}

func (s *Server) serveTCP() {
	defer s.wg.Done()
	for {
		conn, err := s.tcpListener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
				s.Debug("gateway tcp accept error: %v", err)
				return
			}
		}

		if tcpConn, ok := conn.(*net.TCPConn); ok {
			_ = tcpConn.SetNoDelay(true)
		}

		select {
		case s.connSemaphore <- struct{}{}:
		default:
			s.Debug("gateway: client cap reached, rejecting %s", conn.RemoteAddr())
			_ = conn.Close()
			continue
		}

		s.wg.Add(1)
		go func(c net.Conn) {
			defer s.wg.Done()
			defer func() { <-s.connSemaphore }()
			s.handleTCPConn(c)
		}(conn)
	}
}

func (s *Server) handleTCPConn(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	client := conn.RemoteAddr().String()

	buf := make([]byte, MaxFrameSize)
	for {
		select {
		case <-s.shutdown:
			return
		default:
		}

		if err := conn.SetDeadline(time.Now().Add(idleTimeout)); err != nil {
			return
		}

		n, err := conn.Read(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return
			}
			if !errors.Is(err, io.EOF) {
				s.Debug("gateway: tcp read error from %s: %v", client, err)
			}
			return
		}

		reply, err := s.handleFrame(buf[:n])
		if err != nil {
			s.Warn("gateway: request from %s rejected: %v", client, err)
			continue
		}
		if _, err := conn.Write(reply); err != nil {
			s.Debug("gateway: tcp write error to %s: %v", client, err)
			return
		}
	}
}

func (s *Server) serveUDP() {
	defer s.wg.Done()
	buf := make([]byte, MaxFrameSize)
	for {
		select {
		case <-s.shutdown:
			return
		default:
		}

		if err := s.udpConn.SetReadDeadline(time.Now().Add(500 * time.Millisecond)); err != nil {
			continue
		}
		n, clientAddr, err := s.udpConn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			select {
			case <-s.shutdown:
				return
			default:
				s.Debug("gateway: udp read error: %v", err)
				continue
			}
		}

		reply, err := s.handleFrame(buf[:n])
		if err != nil {
			s.Warn("gateway: udp request from %s rejected: %v", clientAddr, err)
			continue
		}
		if _, err := s.udpConn.WriteToUDP(reply, clientAddr); err != nil {
			s.Debug("gateway: udp write error to %s: %v", clientAddr, err)
		}
	}
}

// handleFrame validates, unwraps, forwards, and re-wraps one request frame,
// shared between the TCP and UDP accept loops.
func (s *Server) handleFrame(raw []byte) ([]byte, error) {
	if len(raw) > MaxFrameSize {
		return nil, fmt.Errorf("gateway: frame too large: %d bytes", len(raw))
	}
	if len(raw) < HeaderSize {
		return nil, fmt.Errorf("gateway: frame shorter than header: %d bytes", len(raw))
	}

	_, typ := decodeHeader(raw)
	payload := raw[HeaderSize:]

	reply, err := s.client.ForwardMailbox(payload)
	if err != nil {
		return nil, err
	}

	out := make([]byte, HeaderSize+len(reply))
	encodeHeaderInto(out, uint16(len(reply)), typ)
	copy(out[HeaderSize:], reply)
	return out, nil
}

// decodeHeader splits the leading 2-byte header into its 11-bit length
// field and 5-bit type field (spec.md §6).
func decodeHeader(raw []byte) (length uint16, typ uint8) {
	h := uint16(raw[0])<<8 | uint16(raw[1])
	return h >> 5, uint8(h & 0x1f)
}

// encodeHeaderInto writes length/typ into out[0:2] in the same bit layout
// decodeHeader reads.
func encodeHeaderInto(out []byte, length uint16, typ uint8) {
	h := (length << 5) | uint16(typ&0x1f)
	out[0] = byte(h >> 8)
	out[1] = byte(h)
}
