package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mateuskih/Trabalho-1-UDP/pkg/wire"
)

type recordingReporter struct {
	delivered  []uint32
	lost       []uint32
	recovered  []uint32
	summarized bool
	total      uint32
}

func (r *recordingReporter) SegmentDelivered(seq uint32) { r.delivered = append(r.delivered, seq) }
func (r *recordingReporter) SegmentLost(seq uint32)      { r.lost = append(r.lost, seq) }
func (r *recordingReporter) SegmentRecovered(seq uint32) { r.recovered = append(r.recovered, seq) }
func (r *recordingReporter) Summarize(total uint32, _ time.Duration) error {
	r.summarized = true
	r.total = total
	return nil
}

// fakeServer is a scripted peer on loopback. Tests drive it from a
// goroutine and surface failures through errCh.
type fakeServer struct {
	pc net.PacketConn
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen fake server: %v", err)
	}
	t.Cleanup(func() { pc.Close() })
	return &fakeServer{pc: pc}
}

func (fs *fakeServer) addr() string { return fs.pc.LocalAddr().String() }

func (fs *fakeServer) recv(timeout time.Duration) (wire.Frame, net.Addr, error) {
	buf := make([]byte, wire.MaxDatagram)
	_ = fs.pc.SetReadDeadline(time.Now().Add(timeout))
	n, src, err := fs.pc.ReadFrom(buf)
	if err != nil {
		return wire.Frame{}, nil, err
	}
	var f wire.Frame
	if _, err := f.Decode(buf[:n]); err != nil {
		return wire.Frame{}, nil, err
	}
	f.Payload = append([]byte(nil), f.Payload...)
	return f, src, nil
}

// awaitRequest reads until a REQUEST frame shows up, skipping the ACKs
// the client emits while collecting.
func (fs *fakeServer) awaitRequest(timeout time.Duration) (wire.Command, net.Addr, error) {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return wire.Command{}, nil, errors.New("no request before deadline")
		}
		f, src, err := fs.recv(remaining)
		if err != nil {
			return wire.Command{}, nil, err
		}
		if f.Type != wire.TypeRequest {
			continue
		}
		cmd, err := wire.ParseCommand(f.Payload)
		if err != nil {
			return wire.Command{}, nil, err
		}
		return cmd, src, nil
	}
}

func (fs *fakeServer) send(addr net.Addr, f wire.Frame) error {
	pkt, err := f.Marshal()
	if err != nil {
		return err
	}
	_, err = fs.pc.WriteTo(pkt, addr)
	return err
}

func splitSegments(content []byte, size int) [][]byte {
	var segs [][]byte
	for off := 0; off < len(content); off += size {
		end := off + size
		if end > len(content) {
			end = len(content)
		}
		segs = append(segs, content[off:end])
	}
	if len(segs) == 0 {
		segs = append(segs, nil)
	}
	return segs
}

func testConfig(t *testing.T, addr, name string) Config {
	t.Helper()
	return Config{
		ServerAddr:      addr,
		FileName:        name,
		OutputPath:      filepath.Join(t.TempDir(), name),
		RequestTimeout:  time.Second,
		IdleTimeout:     300 * time.Millisecond,
		RecoverAttempts: 2,
		RecoverTimeout:  300 * time.Millisecond,
	}
}

func TestSessionFetchesWholeFile(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	fs := newFakeServer(t)
	content := []byte("abcdefghij")
	segs := splitSegments(content, 4)

	errCh := make(chan error, 1)
	go func() {
		cmd, src, err := fs.awaitRequest(2 * time.Second)
		if err != nil {
			errCh <- err
			return
		}
		if cmd.Kind != wire.CommandGet || cmd.Name != "file.bin" {
			errCh <- fmt.Errorf("unexpected request: %+v", cmd)
			return
		}
		total := uint32(len(segs))
		for seq, payload := range segs {
			f := wire.DataFrame(uint32(seq), total, payload, seq == len(segs)-1)
			if err := fs.send(src, f); err != nil {
				errCh <- err
				return
			}
		}
		errCh <- nil
	}()

	rep := &recordingReporter{}
	cfg := testConfig(t, fs.addr(), "file.bin")
	cfg.Reporter = rep
	res, err := New(cfg).Fetch(ctx)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("fake server: %v", err)
	}

	if res.Partial {
		t.Fatal("transfer marked partial")
	}
	if res.Total != 3 || res.Delivered != 3 {
		t.Fatalf("total=%d delivered=%d, want 3/3", res.Total, res.Delivered)
	}
	got, err := os.ReadFile(res.Path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("artifact mismatch: got %q want %q", got, content)
	}
	if len(rep.delivered) != 3 || len(rep.lost) != 0 {
		t.Fatalf("reporter saw delivered=%v lost=%v", rep.delivered, rep.lost)
	}
	if !rep.summarized || rep.total != 3 {
		t.Fatalf("summary not written: summarized=%v total=%d", rep.summarized, rep.total)
	}
}

func TestSessionRecoversSkippedSegment(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	fs := newFakeServer(t)
	content := []byte("abcdefghij")
	segs := splitSegments(content, 4)

	errCh := make(chan error, 1)
	go func() {
		_, src, err := fs.awaitRequest(2 * time.Second)
		if err != nil {
			errCh <- err
			return
		}
		total := uint32(len(segs))
		// Skip seq 1 so the stream ends with a gap.
		for _, seq := range []int{0, 2} {
			f := wire.DataFrame(uint32(seq), total, segs[seq], seq == len(segs)-1)
			if err := fs.send(src, f); err != nil {
				errCh <- err
				return
			}
		}
		resend, src, err := fs.awaitRequest(3 * time.Second)
		if err != nil {
			errCh <- err
			return
		}
		if resend.Kind != wire.CommandResend || resend.Seq != 1 {
			errCh <- fmt.Errorf("unexpected recovery request: %+v", resend)
			return
		}
		errCh <- fs.send(src, wire.DataFrame(1, total, segs[1], false))
	}()

	rep := &recordingReporter{}
	var asked []uint32
	cfg := testConfig(t, fs.addr(), "file.bin")
	cfg.Reporter = rep
	cfg.Recover = func(missing []uint32) bool {
		asked = append(asked, missing...)
		return true
	}
	res, err := New(cfg).Fetch(ctx)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("fake server: %v", err)
	}

	if res.Partial {
		t.Fatal("transfer marked partial after successful recovery")
	}
	got, err := os.ReadFile(res.Path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("artifact mismatch: got %q want %q", got, content)
	}
	if len(asked) != 1 || asked[0] != 1 {
		t.Fatalf("recovery decision saw %v, want [1]", asked)
	}
	if len(rep.lost) != 1 || rep.lost[0] != 1 {
		t.Fatalf("reporter lost = %v, want [1]", rep.lost)
	}
	if len(rep.recovered) != 1 || rep.recovered[0] != 1 {
		t.Fatalf("reporter recovered = %v, want [1]", rep.recovered)
	}
}

func TestSessionWritesPartialWhenRecoveryExhausted(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	fs := newFakeServer(t)
	content := []byte("abcdefghij")
	segs := splitSegments(content, 4)

	errCh := make(chan error, 1)
	go func() {
		_, src, err := fs.awaitRequest(2 * time.Second)
		if err != nil {
			errCh <- err
			return
		}
		// Send only the first two of three segments, then go silent.
		total := uint32(len(segs))
		for seq := 0; seq < 2; seq++ {
			if err := fs.send(src, wire.DataFrame(uint32(seq), total, segs[seq], false)); err != nil {
				errCh <- err
				return
			}
		}
		errCh <- nil
	}()

	rep := &recordingReporter{}
	cfg := testConfig(t, fs.addr(), "file.bin")
	cfg.Reporter = rep
	cfg.Recover = func([]uint32) bool { return true }
	res, err := New(cfg).Fetch(ctx)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("fake server: %v", err)
	}

	if !res.Partial {
		t.Fatal("transfer not marked partial")
	}
	if filepath.Ext(res.Path) != ".partial" {
		t.Fatalf("artifact path = %q, want .partial suffix", res.Path)
	}
	if len(res.Lost) != 1 || res.Lost[0] != 2 {
		t.Fatalf("lost = %v, want [2]", res.Lost)
	}
	got, err := os.ReadFile(res.Path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if !bytes.Equal(got, content[:8]) {
		t.Fatalf("partial artifact = %q, want %q", got, content[:8])
	}
	if !rep.summarized {
		t.Fatal("summary skipped for partial transfer")
	}
}

func TestSessionHonorsRecoveryRefusal(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	fs := newFakeServer(t)
	segs := splitSegments([]byte("abcdefghij"), 4)

	errCh := make(chan error, 1)
	go func() {
		_, src, err := fs.awaitRequest(2 * time.Second)
		if err != nil {
			errCh <- err
			return
		}
		total := uint32(len(segs))
		for _, seq := range []int{0, 2} {
			if err := fs.send(src, wire.DataFrame(uint32(seq), total, segs[seq], seq == 2)); err != nil {
				errCh <- err
				return
			}
		}
		errCh <- nil
	}()

	cfg := testConfig(t, fs.addr(), "file.bin")
	cfg.Recover = func([]uint32) bool { return false }
	res, err := New(cfg).Fetch(ctx)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("fake server: %v", err)
	}

	if !res.Partial {
		t.Fatal("refused recovery should leave a partial artifact")
	}
	if len(res.Lost) != 1 || res.Lost[0] != 1 {
		t.Fatalf("lost = %v, want [1]", res.Lost)
	}
}

func TestSessionReportsServerError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	fs := newFakeServer(t)
	errCh := make(chan error, 1)
	go func() {
		_, src, err := fs.awaitRequest(2 * time.Second)
		if err != nil {
			errCh <- err
			return
		}
		errCh <- fs.send(src, wire.ErrorFrame("file not found: ghost.bin"))
	}()

	cfg := testConfig(t, fs.addr(), "ghost.bin")
	_, err := New(cfg).Fetch(ctx)
	if !errors.Is(err, ErrServerError) {
		t.Fatalf("err = %v, want ErrServerError", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("fake server: %v", err)
	}
}

func TestSessionRequestTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	fs := newFakeServer(t) // never replies

	cfg := testConfig(t, fs.addr(), "file.bin")
	cfg.RequestTimeout = 300 * time.Millisecond
	_, err := New(cfg).Fetch(ctx)
	if !errors.Is(err, ErrRequestTimeout) {
		t.Fatalf("err = %v, want ErrRequestTimeout", err)
	}
}

func TestSessionDropSkipsAck(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	fs := newFakeServer(t)
	content := []byte("abcdef")
	segs := splitSegments(content, 4)

	errCh := make(chan error, 1)
	go func() {
		_, src, err := fs.awaitRequest(2 * time.Second)
		if err != nil {
			errCh <- err
			return
		}
		total := uint32(len(segs))

		// First copy of seq 0 is dropped by the simulator, so no ACK
		// may arrive.
		if err := fs.send(src, wire.DataFrame(0, total, segs[0], false)); err != nil {
			errCh <- err
			return
		}
		if f, _, err := fs.recv(400 * time.Millisecond); err == nil {
			errCh <- fmt.Errorf("dropped frame drew a reply: %+v", f)
			return
		}

		// The retransmit is kept and acknowledged.
		if err := fs.send(src, wire.DataFrame(0, total, segs[0], false)); err != nil {
			errCh <- err
			return
		}
		ack, _, err := fs.recv(2 * time.Second)
		if err != nil {
			errCh <- err
			return
		}
		if ack.Type != wire.TypeAck || ack.Seq != 0 {
			errCh <- fmt.Errorf("expected ACK 0, got %+v", ack)
			return
		}

		if err := fs.send(src, wire.DataFrame(1, total, segs[1], true)); err != nil {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	calls := 0
	cfg := testConfig(t, fs.addr(), "file.bin")
	cfg.IdleTimeout = time.Second
	cfg.Drop = func() bool {
		calls++
		return calls == 1
	}
	res, err := New(cfg).Fetch(ctx)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("fake server: %v", err)
	}

	if res.Partial {
		t.Fatal("transfer marked partial")
	}
	got, err := os.ReadFile(res.Path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("artifact mismatch: got %q want %q", got, content)
	}
}

func TestSessionEmptyFile(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	fs := newFakeServer(t)
	errCh := make(chan error, 1)
	go func() {
		_, src, err := fs.awaitRequest(2 * time.Second)
		if err != nil {
			errCh <- err
			return
		}
		errCh <- fs.send(src, wire.DataFrame(0, 1, nil, true))
	}()

	cfg := testConfig(t, fs.addr(), "empty.bin")
	res, err := New(cfg).Fetch(ctx)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("fake server: %v", err)
	}

	if res.Partial || res.Total != 1 || res.Bytes != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	info, err := os.Stat(res.Path)
	if err != nil {
		t.Fatalf("stat artifact: %v", err)
	}
	if info.Size() != 0 {
		t.Fatalf("artifact size = %d, want 0", info.Size())
	}
}
