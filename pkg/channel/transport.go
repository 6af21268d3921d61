package channel

import (
	"context"
	"errors"
	"fmt"
	"io"

	"dolphinenv/pkg/codec"
	"dolphinenv/pkg/protocol"
)

// Receipt bytes written on the waiting pipe.
const (
	ACK byte = 0x06
	NAK byte = 0x15
)

// ErrRejected is returned by Send when the receiver answered NAK.
var ErrRejected = errors.New("message rejected by peer")

// Send writes one frame on the named pipe and waits for the receiver's
// receipt on the waiting pipe. The next open of any pipe can only happen
// after the receiver has closed its end.
func (p *Pair) Send(ctx context.Context, pipe string, kind codec.Kind, v any) error {
	data, err := codec.Marshal(kind, v)
	if err != nil {
		return err
	}
	path := p.Path(pipe)
	if err := writeAll(ctx, path, data); err != nil {
		return err
	}
	return p.awaitReceipt(ctx)
}

func (p *Pair) awaitReceipt(ctx context.Context) error {
	path := p.Path(protocol.WaitingPipe)
	var receipt [1]byte
	err := readWith(ctx, path, func(r io.Reader) error {
		_, err := io.ReadFull(r, receipt[:])
		return err
	})
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return unavailable("ack", path, io.ErrUnexpectedEOF)
	case err != nil:
		var pu *protocol.PeerUnavailableError
		if errors.As(err, &pu) {
			pu.Op = "ack"
			return pu
		}
		return fmt.Errorf("read receipt: %w", err)
	}

	switch receipt[0] {
	case ACK:
		return nil
	case NAK:
		return &protocol.FramingError{Reason: "receipt", Err: ErrRejected}
	default:
		return &protocol.FramingError{Reason: fmt.Sprintf("unknown receipt byte %#x", receipt[0])}
	}
}

// Receive reads exactly one frame from the named pipe, then writes the
// receipt. accept, when non-nil, vets the message before the receipt is
// sent; an accept error or a framing error is answered with NAK and
// returned. The receipt is still written after a framing error so the
// sender is released.
func (p *Pair) Receive(ctx context.Context, pipe string, accept func(codec.Message) error) (codec.Message, error) {
	path := p.Path(pipe)
	var msg codec.Message
	err := readWith(ctx, path, func(r io.Reader) error {
		var rerr error
		msg, rerr = codec.ReadSingle(r)
		return rerr
	})
	var pu *protocol.PeerUnavailableError
	if errors.As(err, &pu) {
		return codec.Message{}, err
	}
	if err == nil && accept != nil {
		err = accept(msg)
	}

	receipt := ACK
	if err != nil {
		receipt = NAK
	}
	if rerr := writeAll(ctx, p.Path(protocol.WaitingPipe), []byte{receipt}); rerr != nil {
		if err == nil {
			err = rerr
		} else {
			p.logger.Printf("write receipt after %v: %v", err, rerr)
		}
	}
	if err != nil {
		return codec.Message{}, err
	}
	return msg, nil
}

// SendCommand writes a command tag on the command pipe.
func (p *Pair) SendCommand(ctx context.Context, cmd protocol.Command) error {
	return p.Send(ctx, protocol.CommandPipe, codec.KindCommand, cmd)
}

// ReceiveCommand reads one command tag. Unknown tags are rejected with NAK.
func (p *Pair) ReceiveCommand(ctx context.Context) (protocol.Command, error) {
	var cmd protocol.Command
	_, err := p.Receive(ctx, protocol.CommandPipe, func(m codec.Message) error {
		var cerr error
		cmd, cerr = m.Command()
		return cerr
	})
	return cmd, err
}

// SendData writes a payload on the data pipe.
func (p *Pair) SendData(ctx context.Context, kind codec.Kind, v any) error {
	return p.Send(ctx, protocol.DataPipe, kind, v)
}

// ReceiveData reads one payload from the data pipe. Only framing is checked
// before the receipt; decoding the payload is left to the caller.
func (p *Pair) ReceiveData(ctx context.Context) (codec.Message, error) {
	return p.Receive(ctx, protocol.DataPipe, nil)
}
