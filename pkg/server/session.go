package server

import (
	"time"

	"github.com/mateuskih/Trabalho-1-UDP/internal"
	"github.com/mateuskih/Trabalho-1-UDP/pkg/metrics"
	"github.com/mateuskih/Trabalho-1-UDP/pkg/segment"
	"github.com/mateuskih/Trabalho-1-UDP/pkg/storage"
	"github.com/mateuskih/Trabalho-1-UDP/pkg/wire"
)

type sessionState uint8

const (
	stateAwaitingRequest sessionState = iota
	stateSending
	stateRecovery
	stateClosed
	stateAborted
)

func (s sessionState) String() string {
	switch s {
	case stateAwaitingRequest:
		return "awaiting_request"
	case stateSending:
		return "sending"
	case stateRecovery:
		return "recovery"
	case stateClosed:
		return "closed"
	case stateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// sendFunc writes one frame to the session's peer.
type sendFunc func(f wire.Frame) error

type sessionConfig struct {
	segmentSize       int
	requestTimeout    time.Duration
	retransmitTimeout time.Duration
	maxRetries        int
	recoveryWindow    time.Duration
	sendPacing        time.Duration
}

// session drives one peer's transfer: await the GET, stream segments one
// at a time against ACKs, then keep a recovery window open for RESENDs.
// All methods run on the session's worker goroutine; nothing here locks.
type session struct {
	peer      string
	cfg       sessionConfig
	store     storage.Store
	collector *metrics.ServerCollector
	send      sendFunc

	state  sessionState
	bornAt time.Time
	opened bool

	fileName string
	file     storage.File
	fileSize int64
	total    uint32
	current  uint32
	retries  int
	lastSend time.Time

	chunk []byte
}

func newSession(peer string, cfg sessionConfig, store storage.Store, collector *metrics.ServerCollector, send sendFunc) *session {
	return &session{
		peer:      peer,
		cfg:       cfg,
		store:     store,
		collector: collector,
		send:      send,
		state:     stateAwaitingRequest,
		bornAt:    time.Now(),
		chunk:     make([]byte, cfg.segmentSize),
	}
}

func (s *session) done() bool {
	return s.state == stateClosed || s.state == stateAborted
}

// nextTimeout reports how long the worker may block waiting for traffic
// before it must call onTimeout.
func (s *session) nextTimeout(now time.Time) time.Duration {
	var d time.Duration
	switch s.state {
	case stateAwaitingRequest:
		d = s.bornAt.Add(s.cfg.requestTimeout).Sub(now)
	case stateSending:
		d = s.lastSend.Add(s.cfg.retransmitTimeout).Sub(now)
	case stateRecovery:
		// Idle window: any inbound traffic restarts it.
		d = s.cfg.recoveryWindow
	}
	if d < 0 {
		d = 0
	}
	return d
}

// handleDatagram validates one inbound datagram and applies it to the
// state machine. Invalid frames are dropped without a reply so the only
// remediation for a corrupted ACK is the retransmit timer.
func (s *session) handleDatagram(pkt []byte) {
	var f wire.Frame
	if _, err := f.Decode(pkt); err != nil {
		s.collector.ObserveInvalidFrame()
		internal.Warn("dropping invalid frame", internal.Fields{
			internal.FieldPeer:  s.peer,
			internal.FieldError: err.Error(),
		})
		return
	}

	switch f.Type {
	case wire.TypeRequest:
		cmd, err := wire.ParseCommand(f.Payload)
		if err != nil {
			if s.state == stateAwaitingRequest {
				internal.Error("malformed request", internal.Fields{
					internal.FieldPeer:  s.peer,
					internal.FieldError: err.Error(),
				})
				s.sendError("malformed request")
				s.state = stateClosed
				return
			}
			internal.Warn("ignoring malformed request", internal.Fields{
				internal.FieldPeer:  s.peer,
				internal.FieldError: err.Error(),
			})
			return
		}
		switch cmd.Kind {
		case wire.CommandGet:
			s.onGet(cmd.Name)
		case wire.CommandResend:
			s.onResend(cmd.Seq)
		}
	case wire.TypeAck:
		s.onAck(f.Seq)
	default:
		internal.Debug("ignoring unexpected frame", internal.Fields{
			internal.FieldPeer:  s.peer,
			internal.FieldFrame: f.Type,
		})
	}
}

func (s *session) onGet(name string) {
	if s.state != stateAwaitingRequest {
		internal.Warn("GET outside request state", internal.Fields{
			internal.FieldPeer:  s.peer,
			internal.FieldState: s.state.String(),
		})
		return
	}

	f, err := s.store.Open(name)
	if err != nil {
		internal.Error("request for unreadable file", internal.Fields{
			internal.FieldPeer:  s.peer,
			internal.FieldFile:  name,
			internal.FieldError: err.Error(),
		})
		s.sendError(err.Error())
		s.state = stateClosed
		return
	}

	s.fileName = name
	s.file = f
	s.fileSize = f.Size()
	s.total = segment.Count(s.fileSize, s.cfg.segmentSize)
	s.state = stateSending
	s.opened = true
	s.collector.SessionOpened()

	internal.Info("transfer started", internal.Fields{
		internal.FieldPeer:  s.peer,
		internal.FieldFile:  name,
		internal.FieldBytes: s.fileSize,
		internal.FieldTotal: s.total,
	})
	s.sendSegment(0, false)
}

func (s *session) onAck(seq uint32) {
	if s.state != stateSending {
		internal.Debug("ACK outside sending state", internal.Fields{
			internal.FieldPeer:  s.peer,
			internal.FieldSeq:   seq,
			internal.FieldState: s.state.String(),
		})
		return
	}
	s.collector.ObserveAck()

	// Stop-and-wait: only the in-flight segment can be acknowledged.
	if seq != s.current {
		internal.Debug("stale ACK ignored", internal.Fields{
			internal.FieldPeer: s.peer,
			internal.FieldSeq:  seq,
		})
		return
	}

	s.retries = 0
	s.current++
	if s.current == s.total {
		s.state = stateRecovery
		s.collector.SessionCompleted()
		internal.Info("all segments acknowledged, recovery window open", internal.Fields{
			internal.FieldPeer:  s.peer,
			internal.FieldFile:  s.fileName,
			internal.FieldTotal: s.total,
		})
		return
	}
	s.sendSegment(s.current, false)
}

func (s *session) onResend(seq uint32) {
	if s.state != stateRecovery {
		internal.Warn("RESEND outside recovery window", internal.Fields{
			internal.FieldPeer:  s.peer,
			internal.FieldSeq:   seq,
			internal.FieldState: s.state.String(),
		})
		return
	}
	if seq >= s.total {
		internal.Warn("RESEND out of range", internal.Fields{
			internal.FieldPeer:  s.peer,
			internal.FieldSeq:   seq,
			internal.FieldTotal: s.total,
		})
		return
	}

	n, err := s.writeSegment(seq)
	if err != nil {
		internal.Error("recovery resend failed", internal.Fields{
			internal.FieldPeer:  s.peer,
			internal.FieldSeq:   seq,
			internal.FieldError: err.Error(),
		})
		return
	}
	s.collector.ObserveRecoveryResend(n)
	internal.Info("recovery resend served", internal.Fields{
		internal.FieldPeer: s.peer,
		internal.FieldSeq:  seq,
	})
	if s.cfg.sendPacing > 0 {
		time.Sleep(s.cfg.sendPacing)
	}
}

// onTimeout fires when the state's wait expired with no inbound traffic.
func (s *session) onTimeout() {
	switch s.state {
	case stateAwaitingRequest:
		internal.Warn("no request received", internal.Fields{
			internal.FieldPeer: s.peer,
		})
		s.state = stateClosed
	case stateSending:
		s.retries++
		if s.retries >= s.cfg.maxRetries {
			internal.Error("retries exhausted, aborting transfer", internal.Fields{
				internal.FieldPeer:    s.peer,
				internal.FieldFile:    s.fileName,
				internal.FieldSeq:     s.current,
				internal.FieldRetries: s.retries,
			})
			s.state = stateAborted
			s.collector.SessionAborted()
			return
		}
		internal.Warn("ack timeout, resending segment", internal.Fields{
			internal.FieldPeer:    s.peer,
			internal.FieldSeq:     s.current,
			internal.FieldRetries: s.retries,
		})
		s.sendSegment(s.current, true)
	case stateRecovery:
		internal.Info("recovery window closed", internal.Fields{
			internal.FieldPeer: s.peer,
			internal.FieldFile: s.fileName,
		})
		s.state = stateClosed
	}
}

func (s *session) sendSegment(seq uint32, retransmit bool) {
	n, err := s.writeSegment(seq)
	if err != nil {
		internal.Error("segment send failed", internal.Fields{
			internal.FieldPeer:  s.peer,
			internal.FieldSeq:   seq,
			internal.FieldError: err.Error(),
		})
		s.state = stateAborted
		s.collector.SessionAborted()
		return
	}
	s.lastSend = time.Now()
	s.collector.ObserveSegmentSend(n, retransmit)
	internal.Debug("segment sent", internal.Fields{
		internal.FieldPeer:  s.peer,
		internal.FieldSeq:   seq,
		internal.FieldTotal: s.total,
		internal.FieldBytes: n,
	})
	if s.cfg.sendPacing > 0 {
		time.Sleep(s.cfg.sendPacing)
	}
}

// writeSegment reads segment seq from the file and sends it as a DATA
// frame. The cursor is never touched, so recovery resends cannot disturb
// the stop-and-wait stream.
func (s *session) writeSegment(seq uint32) (int, error) {
	offset, length := segment.Range(seq, s.fileSize, s.cfg.segmentSize)
	chunk := s.chunk[:length]
	if length > 0 {
		if _, err := s.file.ReadAt(chunk, offset); err != nil {
			return 0, err
		}
	}
	f := wire.DataFrame(seq, s.total, chunk, seq == s.total-1)
	if err := s.send(f); err != nil {
		return 0, err
	}
	return length, nil
}

func (s *session) sendError(msg string) {
	if err := s.send(wire.ErrorFrame(msg)); err != nil {
		internal.Error("error frame send failed", internal.Fields{
			internal.FieldPeer:  s.peer,
			internal.FieldError: err.Error(),
		})
		return
	}
	s.collector.ObserveErrorSent()
}

// close releases the file handle. Safe to call more than once.
func (s *session) close() {
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
	if s.opened {
		s.opened = false
		s.collector.SessionClosed()
	}
	internal.Debug("session finished", internal.Fields{
		internal.FieldPeer:  s.peer,
		internal.FieldState: s.state.String(),
	})
}
