package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"dolphinenv/pkg/protocol"
)

// releaseRetry is how often a cancelled open retries waking its own
// blocked open call.
const releaseRetry = 5 * time.Millisecond

// past is a deadline that has already expired.
var past = time.Unix(1, 0)

// openFIFO opens a FIFO for reading (os.O_RDONLY) or writing (os.O_WRONLY).
// The open blocks until the peer opens the other end. If ctx ends first the
// blocked open is released by briefly opening the other end ourselves,
// non-blocking, and the result is discarded.
func openFIFO(ctx context.Context, path string, flag int) (*os.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("open", path, err)
	}

	type result struct {
		f   *os.File
		err error
	}
	done := make(chan result, 1)
	go func() {
		f, err := os.OpenFile(path, flag, 0)
		done <- result{f, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, unavailable("open", path, r.err)
		}
		return r.f, nil
	case <-ctx.Done():
	}

	for {
		if fd, err := openPeer(path, flag); err == nil {
			r := <-done
			_ = unix.Close(fd)
			if r.f != nil {
				_ = r.f.Close()
			}
			return nil, unavailable("open", path, ctx.Err())
		}
		select {
		case r := <-done:
			if r.f != nil {
				_ = r.f.Close()
			}
			return nil, unavailable("open", path, ctx.Err())
		case <-time.After(releaseRetry):
		}
	}
}

// openPeer opens the end complementary to flag without blocking. A
// non-blocking writer only succeeds once a reader is waiting, so the caller
// retries until its own open has reached the kernel.
func openPeer(path string, flag int) (int, error) {
	peer := unix.O_RDONLY
	if flag&(os.O_WRONLY|os.O_RDWR) == 0 {
		peer = unix.O_WRONLY
	}
	return unix.Open(path, peer|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
}

// bindDeadline applies ctx to f: its deadline if it has one, and an
// immediate deadline when ctx is cancelled. The returned func detaches the
// cancellation hook.
func bindDeadline(ctx context.Context, f *os.File) func() bool {
	if d, ok := ctx.Deadline(); ok {
		_ = f.SetDeadline(d)
	}
	return context.AfterFunc(ctx, func() {
		_ = f.SetDeadline(past)
	})
}

// ioErr maps a read or write failure on path, preferring the context's
// reason when the deadline fired because of it.
func ioErr(ctx context.Context, op, path string, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		return unavailable(op, path, cerr)
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return unavailable(op, path, context.DeadlineExceeded)
	}
	if errors.Is(err, unix.EPIPE) {
		return unavailable(op, path, err)
	}
	return fmt.Errorf("%s %s: %w", op, path, err)
}

func unavailable(op, path string, err error) error {
	return &protocol.PeerUnavailableError{Op: op, Path: path, Err: err}
}

// writeAll opens path for writing, writes data and closes it.
func writeAll(ctx context.Context, path string, data []byte) error {
	f, err := openFIFO(ctx, path, os.O_WRONLY)
	if err != nil {
		return err
	}
	stop := bindDeadline(ctx, f)
	_, werr := f.Write(data)
	stop()
	cerr := f.Close()
	if werr != nil {
		return ioErr(ctx, "write", path, werr)
	}
	if cerr != nil {
		return fmt.Errorf("close %s: %w", path, cerr)
	}
	return nil
}

// readWith opens path for reading, hands the file to fn and closes it.
func readWith(ctx context.Context, path string, fn func(io.Reader) error) error {
	f, err := openFIFO(ctx, path, os.O_RDONLY)
	if err != nil {
		return err
	}
	stop := bindDeadline(ctx, f)
	rerr := fn(f)
	stop()
	_ = f.Close()
	if rerr != nil && (ctx.Err() != nil || errors.Is(rerr, os.ErrDeadlineExceeded)) {
		return ioErr(ctx, "read", path, rerr)
	}
	return rerr
}
