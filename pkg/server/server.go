// Package server hosts the UDP transfer daemon: one shared socket, a
// dispatcher that routes datagrams by source address, and a worker per
// peer driving that peer's send session.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/mateuskih/Trabalho-1-UDP/internal"
	"github.com/mateuskih/Trabalho-1-UDP/pkg/metrics"
	"github.com/mateuskih/Trabalho-1-UDP/pkg/storage"
	"github.com/mateuskih/Trabalho-1-UDP/pkg/wire"
)

type Server struct {
	cfg       *internal.ServerConfig
	store     storage.Store
	collector *metrics.ServerCollector
	sessCfg   sessionConfig

	pc   net.PacketConn
	bufs *internal.BufferPool

	mu    sync.Mutex
	peers map[string]chan []byte
	wg    sync.WaitGroup
}

func New(cfg *internal.ServerConfig, store storage.Store, collector *metrics.ServerCollector) *Server {
	if collector == nil {
		collector = metrics.NewServerCollector("")
	}
	return &Server{
		cfg:       cfg,
		store:     store,
		collector: collector,
		sessCfg:   makeSessionConfig(cfg),
		bufs:      internal.NewBufferPool(64 * 1024),
		peers:     make(map[string]chan []byte),
	}
}

func makeSessionConfig(cfg *internal.ServerConfig) sessionConfig {
	sc := sessionConfig{
		segmentSize:       cfg.SegmentSize,
		requestTimeout:    time.Duration(cfg.RequestTimeoutMs) * time.Millisecond,
		retransmitTimeout: time.Duration(cfg.RetransmitTimeout) * time.Millisecond,
		maxRetries:        cfg.MaxRetries,
		recoveryWindow:    time.Duration(cfg.RecoveryWindowMs) * time.Millisecond,
		sendPacing:        time.Duration(cfg.SendPacingMs) * time.Millisecond,
	}
	if sc.segmentSize <= 0 || sc.segmentSize > wire.MaxPayload {
		sc.segmentSize = wire.DefaultSegmentSize
	}
	if sc.requestTimeout <= 0 {
		sc.requestTimeout = 2 * time.Second
	}
	if sc.retransmitTimeout <= 0 {
		sc.retransmitTimeout = 2 * time.Second
	}
	if sc.maxRetries <= 0 {
		sc.maxRetries = 3
	}
	if sc.recoveryWindow <= 0 {
		sc.recoveryWindow = 5 * time.Second
	}
	return sc
}

// Collector exposes the metrics collector so the daemon can serve its
// registry over HTTP.
func (srv *Server) Collector() *metrics.ServerCollector { return srv.collector }

// Listen binds the shared UDP socket (v6 dual-stack preferred, v4
// fallback) and reports the actual port.
func (srv *Server) Listen(ctx context.Context) (int, error) {
	lc := net.ListenConfig{
		Control: func(network, _ string, c syscall.RawConn) error {
			return c.Control(func(fd uintptr) {
				_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
				_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
				if network == "udp6" {
					_ = unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 0)
				}
			})
		},
	}

	addr6 := fmt.Sprintf("[::]:%d", srv.cfg.Port)
	addr4 := fmt.Sprintf("0.0.0.0:%d", srv.cfg.Port)
	pc, err := lc.ListenPacket(ctx, "udp6", addr6)
	if err != nil {
		internal.Warn("error creating udp ipv6 listener", internal.Fields{
			internal.FieldPort:  srv.cfg.Port,
			internal.FieldError: err.Error(),
		})
		pc, err = lc.ListenPacket(ctx, "udp4", addr4)
		if err != nil {
			return 0, err
		}
	}
	if uc, ok := pc.(*net.UDPConn); ok {
		_ = uc.SetReadBuffer(srv.cfg.UDPReadBufferSize)
		if srv.cfg.UDPWriteBufferSize > 0 {
			_ = uc.SetWriteBuffer(srv.cfg.UDPWriteBufferSize)
		}
	}
	srv.pc = pc

	port := 0
	if ua, ok := pc.LocalAddr().(*net.UDPAddr); ok {
		port = ua.Port
	}
	internal.Info("udp listener bound", internal.Fields{
		internal.FieldPort: port,
	})
	return port, nil
}

// Serve reads datagrams until ctx is canceled or the socket closes. Each
// datagram is copied and routed to its peer's queue; a full queue drops
// the datagram, leaving remediation to the protocol's own timeouts.
func (srv *Server) Serve(ctx context.Context) error {
	if srv.pc == nil {
		return errors.New("server is not listening")
	}
	defer srv.wg.Wait()

	readTimeout := time.Duration(srv.cfg.UDPReadTimeoutMs) * time.Millisecond
	if readTimeout <= 0 {
		readTimeout = time.Second
	}

	buf := make([]byte, 64*1024)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		_ = srv.pc.SetReadDeadline(time.Now().Add(readTimeout))
		n, src, err := srv.pc.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		pkt := append(srv.bufs.Get(), buf[:n]...)
		srv.route(ctx, src, pkt)
	}
}

// Close unblocks Serve by closing the socket.
func (srv *Server) Close() error {
	if srv.pc == nil {
		return nil
	}
	return srv.pc.Close()
}

// route hands the datagram to its peer's worker, creating the worker on
// first contact. The dispatcher is the only goroutine that touches the
// peer map outside of worker teardown.
func (srv *Server) route(ctx context.Context, src net.Addr, pkt []byte) {
	key := src.String()

	srv.mu.Lock()
	inbox, ok := srv.peers[key]
	if !ok {
		depth := srv.cfg.UDPQueueDepth
		if depth <= 0 {
			depth = 64
		}
		inbox = make(chan []byte, depth)
		srv.peers[key] = inbox

		sess := newSession(key, srv.sessCfg, srv.store, srv.collector, srv.sendTo(src))
		srv.wg.Add(1)
		go srv.runSession(ctx, sess, inbox, key)
	}
	srv.mu.Unlock()

	select {
	case inbox <- pkt:
	default:
		srv.bufs.Put(pkt)
		srv.collector.ObserveQueueDrop()
		internal.Warn("peer queue full, datagram dropped", internal.Fields{
			internal.FieldPeer: key,
		})
	}
}

// sendTo builds the session's send function. Sessions are single
// goroutine, so the encode buffer needs no lock.
func (srv *Server) sendTo(src net.Addr) sendFunc {
	out := make([]byte, wire.HeaderLen+srv.sessCfg.segmentSize)
	return func(f wire.Frame) error {
		if need := f.EncodedLen(); need > len(out) {
			out = make([]byte, need)
		}
		n, err := f.Encode(out)
		if err != nil {
			return err
		}
		_, err = srv.pc.WriteTo(out[:n], src)
		return err
	}
}

func (srv *Server) runSession(ctx context.Context, sess *session, inbox chan []byte, key string) {
	defer srv.wg.Done()
	defer srv.dropPeer(key)
	defer sess.close()

	for {
		timer := time.NewTimer(sess.nextTimeout(time.Now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case pkt := <-inbox:
			timer.Stop()
			sess.handleDatagram(pkt)
			srv.bufs.Put(pkt)
		case <-timer.C:
			sess.onTimeout()
		}
		if sess.done() {
			return
		}
	}
}

func (srv *Server) dropPeer(key string) {
	srv.mu.Lock()
	delete(srv.peers, key)
	srv.mu.Unlock()
}
