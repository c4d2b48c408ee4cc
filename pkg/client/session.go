// Package client downloads one file from a udpcopy server: it requests
// the file, acknowledges each segment of the stop-and-wait stream,
// detects gaps once the stream goes quiet, and optionally asks for the
// missing segments again before writing the artifact to disk.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/mateuskih/Trabalho-1-UDP/internal"
	"github.com/mateuskih/Trabalho-1-UDP/pkg/report"
	"github.com/mateuskih/Trabalho-1-UDP/pkg/segment"
	"github.com/mateuskih/Trabalho-1-UDP/pkg/wire"
)

var (
	// ErrRequestTimeout means the server never answered the GET.
	ErrRequestTimeout = errors.New("no reply to request before timeout")
	// ErrServerError wraps the text of an ERROR frame.
	ErrServerError = errors.New("server error")
	// ErrNoData means the stream went idle before any segment was
	// accepted.
	ErrNoData = errors.New("no data received from server")
)

type sessionState uint8

const (
	stateRequesting sessionState = iota
	stateCollecting
	stateRecovering
	stateAssembled
	stateFailed
)

func (s sessionState) String() string {
	switch s {
	case stateRequesting:
		return "requesting"
	case stateCollecting:
		return "collecting"
	case stateRecovering:
		return "recovering"
	case stateAssembled:
		return "assembled"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// RecoverDecision is consulted once, with the missing sequences, before
// the recovery phase starts. Interactive prompts live in the CLI; this
// package only ever calls the hook.
type RecoverDecision func(missing []uint32) bool

type Config struct {
	ServerAddr string
	FileName   string
	OutputPath string

	RequestTimeout  time.Duration
	IdleTimeout     time.Duration
	RecoverAttempts int
	RecoverTimeout  time.Duration

	SocketBufferSize int

	Recover  RecoverDecision
	Drop     DropFunc
	Reporter report.Reporter

	// Progress, when set, is called with the running delivered count
	// after every stored segment.
	Progress func(delivered, total uint32)
}

// Result describes a finished download. Partial means some sequences
// stayed lost after recovery and the artifact carries the ".partial"
// suffix.
type Result struct {
	Path      string
	Partial   bool
	Total     uint32
	Delivered int
	Recovered []uint32
	Lost      []uint32
	Bytes     int64
	Elapsed   time.Duration
}

// Session drives one download. Not safe for concurrent use; create one
// per transfer.
type Session struct {
	cfg      Config
	reporter report.Reporter
	drop     DropFunc

	pc     net.PacketConn
	remote *net.UDPAddr

	state     sessionState
	startedAt time.Time

	total     uint32
	store     *segment.Store
	recovered []uint32

	in  []byte
	out []byte
}

func New(cfg Config) *Session {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 2 * time.Second
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 2 * time.Second
	}
	if cfg.RecoverAttempts <= 0 {
		cfg.RecoverAttempts = 3
	}
	if cfg.RecoverTimeout <= 0 {
		cfg.RecoverTimeout = 2 * time.Second
	}
	reporter := cfg.Reporter
	if reporter == nil {
		reporter = report.Nop{}
	}
	drop := cfg.Drop
	if drop == nil {
		drop = NeverDrop
	}
	return &Session{
		cfg:      cfg,
		reporter: reporter,
		drop:     drop,
		state:    stateRequesting,
		store:    segment.NewStore(),
		in:       make([]byte, 64*1024),
		out:      make([]byte, wire.HeaderLen+256),
	}
}

// Fetch runs the whole download and returns where the artifact landed.
func (s *Session) Fetch(ctx context.Context) (*Result, error) {
	remote, err := net.ResolveUDPAddr("udp", s.cfg.ServerAddr)
	if err != nil {
		s.state = stateFailed
		return nil, fmt.Errorf("resolve server address: %w", err)
	}
	pc, err := net.ListenPacket("udp", ":0")
	if err != nil {
		s.state = stateFailed
		return nil, fmt.Errorf("open socket: %w", err)
	}
	defer pc.Close()
	if uc, ok := pc.(*net.UDPConn); ok && s.cfg.SocketBufferSize > 0 {
		_ = uc.SetReadBuffer(s.cfg.SocketBufferSize)
	}
	s.pc = pc
	s.remote = remote
	s.startedAt = time.Now()

	if err := s.sendFrame(wire.GetFrame(s.cfg.FileName)); err != nil {
		s.state = stateFailed
		return nil, fmt.Errorf("send request: %w", err)
	}
	internal.Info("file requested", internal.Fields{
		internal.FieldPeer: s.cfg.ServerAddr,
		internal.FieldFile: s.cfg.FileName,
	})

	if err := s.collect(ctx); err != nil {
		s.state = stateFailed
		return nil, err
	}
	if s.total == 0 {
		s.state = stateFailed
		return nil, ErrNoData
	}

	missing := s.store.Missing(s.total)
	for _, seq := range missing {
		s.reporter.SegmentLost(seq)
	}
	if len(missing) > 0 {
		internal.Warn("stream ended with gaps", internal.Fields{
			internal.FieldFile:  s.cfg.FileName,
			internal.FieldTotal: s.total,
			internal.FieldSeq:   missing,
		})
		if s.cfg.Recover != nil && s.cfg.Recover(missing) {
			s.state = stateRecovering
			if err := s.recover(ctx, missing); err != nil {
				s.state = stateFailed
				return nil, err
			}
		}
	}

	return s.assemble()
}

// collect drains the stop-and-wait stream: ACK every accepted segment,
// stop when the store is full or the stream stays quiet past the idle
// timeout.
func (s *Session) collect(ctx context.Context) error {
	deadline := time.Now().Add(s.cfg.RequestTimeout)
	for {
		f, ok, err := s.readFrame(ctx, deadline)
		if err != nil {
			return err
		}
		if !ok {
			if s.state == stateRequesting {
				return ErrRequestTimeout
			}
			return nil
		}

		switch f.Type {
		case wire.TypeError:
			return fmt.Errorf("%w: %s", ErrServerError, f.Payload)
		case wire.TypeData:
		default:
			continue
		}

		if s.state == stateRequesting {
			s.state = stateCollecting
		}
		// Any valid DATA frame proves the server is alive, even one the
		// simulator is about to discard.
		deadline = time.Now().Add(s.cfg.IdleTimeout)

		if s.drop() {
			internal.Debug("simulating datagram loss", internal.Fields{
				internal.FieldSeq: f.Seq,
			})
			continue
		}
		if s.total == 0 {
			s.total = f.TotalSegments
			internal.Info("receiving", internal.Fields{
				internal.FieldFile:  s.cfg.FileName,
				internal.FieldTotal: s.total,
			})
		}
		if s.store.Put(f.Seq, f.Payload) {
			s.reporter.SegmentDelivered(f.Seq)
			s.notifyProgress()
		}
		if err := s.sendFrame(wire.AckFrame(f.Seq)); err != nil {
			return fmt.Errorf("send ack: %w", err)
		}
		if s.total > 0 && s.store.Len() == int(s.total) {
			return nil
		}
	}
}

// recover asks for each missing sequence in ascending order, up to
// RecoverAttempts rounds each. Unrelated DATA frames that show up while
// waiting are stored too. The loss simulator is not consulted here.
func (s *Session) recover(ctx context.Context, missing []uint32) error {
	for _, seq := range missing {
		if s.store.Has(seq) {
			continue
		}
		for attempt := 1; attempt <= s.cfg.RecoverAttempts; attempt++ {
			internal.Info("requesting missing segment", internal.Fields{
				internal.FieldSeq:     seq,
				internal.FieldRetries: attempt,
			})
			if err := s.sendFrame(wire.ResendFrame(seq)); err != nil {
				return fmt.Errorf("send resend: %w", err)
			}
			if err := s.awaitSegment(ctx, seq); err != nil {
				return err
			}
			if s.store.Has(seq) {
				break
			}
		}
		if !s.store.Has(seq) {
			internal.Error("segment permanently lost", internal.Fields{
				internal.FieldSeq: seq,
			})
		}
	}
	return nil
}

// awaitSegment waits one recovery timeout for seq, storing anything else
// useful that arrives meanwhile.
func (s *Session) awaitSegment(ctx context.Context, seq uint32) error {
	deadline := time.Now().Add(s.cfg.RecoverTimeout)
	for {
		f, ok, err := s.readFrame(ctx, deadline)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if f.Type != wire.TypeData {
			continue
		}
		if s.store.Put(f.Seq, f.Payload) {
			s.recovered = append(s.recovered, f.Seq)
			s.reporter.SegmentRecovered(f.Seq)
			s.notifyProgress()
			internal.Info("segment recovered", internal.Fields{
				internal.FieldSeq: f.Seq,
			})
		}
		if f.Seq == seq {
			return nil
		}
	}
}

// assemble writes the artifact: the full file when nothing is missing,
// otherwise the available segments under a ".partial" suffix.
func (s *Session) assemble() (*Result, error) {
	lost := s.store.Missing(s.total)
	path := s.cfg.OutputPath
	if len(lost) > 0 {
		path += ".partial"
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			s.state = stateFailed
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}

	out, err := os.Create(path)
	if err != nil {
		s.state = stateFailed
		return nil, fmt.Errorf("create artifact: %w", err)
	}
	n, err := s.store.WriteTo(out)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		s.state = stateFailed
		return nil, fmt.Errorf("write artifact: %w", err)
	}

	s.state = stateAssembled
	elapsed := time.Since(s.startedAt)
	if err := s.reporter.Summarize(s.total, elapsed); err != nil {
		internal.Warn("report writing failed", internal.Fields{
			internal.FieldError: err.Error(),
		})
	}
	internal.Info("transfer finished", internal.Fields{
		internal.FieldFile:    path,
		internal.FieldBytes:   n,
		internal.FieldTotal:   s.total,
		internal.FieldElapsed: elapsed.String(),
	})

	return &Result{
		Path:      path,
		Partial:   len(lost) > 0,
		Total:     s.total,
		Delivered: s.store.Len(),
		Recovered: s.recovered,
		Lost:      lost,
		Bytes:     n,
		Elapsed:   elapsed,
	}, nil
}

// readFrame blocks until a valid frame arrives from the server or the
// deadline passes. ok is false on deadline. Corrupted datagrams and
// strangers are dropped without resetting anything.
func (s *Session) readFrame(ctx context.Context, deadline time.Time) (wire.Frame, bool, error) {
	var zero wire.Frame
	for {
		if err := ctx.Err(); err != nil {
			return zero, false, err
		}
		now := time.Now()
		if !now.Before(deadline) {
			return zero, false, nil
		}
		poll := deadline.Sub(now)
		if poll > 200*time.Millisecond {
			poll = 200 * time.Millisecond
		}
		_ = s.pc.SetReadDeadline(now.Add(poll))

		n, src, err := s.pc.ReadFrom(s.in)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return zero, false, err
		}
		if !matchAddr(src, s.remote) {
			continue
		}

		var f wire.Frame
		if _, err := f.Decode(s.in[:n]); err != nil {
			internal.Debug("dropping invalid frame", internal.Fields{
				internal.FieldError: err.Error(),
			})
			continue
		}
		return f, true, nil
	}
}

func (s *Session) notifyProgress() {
	if s.cfg.Progress != nil {
		s.cfg.Progress(uint32(s.store.Len()), s.total)
	}
}

func (s *Session) sendFrame(f wire.Frame) error {
	if need := f.EncodedLen(); need > len(s.out) {
		s.out = make([]byte, need)
	}
	n, err := f.Encode(s.out)
	if err != nil {
		return err
	}
	_, err = s.pc.WriteTo(s.out[:n], s.remote)
	return err
}

func matchAddr(got net.Addr, want *net.UDPAddr) bool {
	ua, ok := got.(*net.UDPAddr)
	if !ok {
		return false
	}
	return ua.Port == want.Port && ua.IP.Equal(want.IP)
}
