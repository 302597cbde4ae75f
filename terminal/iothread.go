package terminal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"syscall"
	"time"
)

// ErrStopTimeout is returned by IoThread.Stop and PtySession.Stop when the
// reader goroutine does not finish within the deadline. This indicates a
// stuck blocking read that cannot be forcibly stopped and should be
// surfaced loudly by the caller.
var ErrStopTimeout = errors.New("reader did not stop within timeout")

// ErrAlreadyRunning is returned by Start when the component is running.
var ErrAlreadyRunning = errors.New("already running")

const (
	readChunkSize    = 4096
	ringRetryBackoff = 100 * time.Microsecond
)

// IoThreadConfig wires a PTY output file to a ring buffer.
type IoThreadConfig struct {
	// File is the PTY output handle the reader blocks on.
	File *os.File
	// Ring receives every byte read, in order.
	Ring *RingBuffer
	// OnData fires after at least one byte landed in the ring. Optional.
	OnData func(n int)
	// OnError receives unexpected read errors. Optional. Broken pipes,
	// EOF and close-during-read are normal end of stream and not
	// reported.
	OnError func(err error)
	// Logger defaults to NopLogger.
	Logger Logger
}

// IoThread runs a dedicated reader goroutine that performs blocking reads
// from a PTY output handle and pushes the bytes into a RingBuffer.
//
// When the ring is full the reader sleeps briefly and retries the
// remaining bytes instead of dropping them, so a stalled consumer causes
// backpressure rather than data loss.
type IoThread struct {
	cfg IoThreadConfig

	running   atomic.Bool
	stopFlag  atomic.Bool
	bytesRead atomic.Uint64
	done      chan struct{}
}

// NewIoThread validates the configuration. Nothing runs until Start.
func NewIoThread(cfg IoThreadConfig) (*IoThread, error) {
	if cfg.File == nil {
		return nil, fmt.Errorf("invalid read handle")
	}
	if cfg.Ring == nil {
		return nil, fmt.Errorf("output buffer is nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = NopLogger{}
	}
	return &IoThread{cfg: cfg}, nil
}

// Start launches the reader goroutine.
func (t *IoThread) Start() error {
	if !t.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	t.stopFlag.Store(false)
	t.done = make(chan struct{})
	go t.readLoop()
	return nil
}

// IsRunning reports whether the reader goroutine is active.
func (t *IoThread) IsRunning() bool {
	return t.running.Load()
}

// BytesRead returns the total bytes delivered into the ring so far.
func (t *IoThread) BytesRead() uint64 {
	return t.bytesRead.Load()
}

// Stop requests the reader to exit, closes the file to cancel a pending
// blocking read, and waits up to timeout for the goroutine to finish.
// Exceeding the timeout returns ErrStopTimeout. Idempotent.
func (t *IoThread) Stop(timeout time.Duration) error {
	if !t.running.Load() {
		return nil
	}
	t.stopFlag.Store(true)

	// Closing the handle is the cancellation primitive: it makes the
	// pending blocking read return instead of hanging.
	_ = t.cfg.File.Close()

	select {
	case <-t.done:
		return nil
	case <-time.After(timeout):
		t.cfg.Logger.Error("reader goroutine stuck on stop", "timeout", timeout)
		return ErrStopTimeout
	}
}

func (t *IoThread) readLoop() {
	defer func() {
		t.running.Store(false)
		close(t.done)
	}()

	buf := make([]byte, readChunkSize)
	for {
		n, err := t.cfg.File.Read(buf)
		if n > 0 {
			if !t.pushToRing(buf[:n]) {
				return
			}
		}
		if err != nil {
			if !isExpectedReadEnd(err) && !t.stopFlag.Load() {
				t.cfg.Logger.Warn("pty read failed", "error", err)
				if t.cfg.OnError != nil {
					t.cfg.OnError(err)
				}
			}
			return
		}
		if n == 0 {
			return
		}
	}
}

// pushToRing writes data into the ring, sleeping and retrying while the
// ring is full. Returns false when a stop was requested mid-write.
func (t *IoThread) pushToRing(data []byte) bool {
	written := 0
	for written < len(data) {
		if t.stopFlag.Load() {
			return false
		}
		n := t.cfg.Ring.Write(data[written:])
		if n == 0 {
			time.Sleep(ringRetryBackoff)
			continue
		}
		written += n
	}
	t.bytesRead.Add(uint64(written))
	if t.cfg.OnData != nil {
		t.cfg.OnData(written)
	}
	return true
}

// isExpectedReadEnd reports whether a read error is the normal end of a
// PTY stream: EOF, the handle closed under us, or EIO after the child
// side hung up.
func isExpectedReadEnd(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
		return true
	}
	if errors.Is(err, syscall.EIO) || errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	return false
}
