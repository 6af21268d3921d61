package codec_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"dolphinenv/pkg/action"
	"dolphinenv/pkg/codec"
	"dolphinenv/pkg/protocol"
)

func TestCommandFrame(t *testing.T) {
	t.Parallel()

	data, err := codec.Marshal(codec.KindCommand, protocol.CmdGetFrame)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := []byte{byte(codec.KindCommand), 0, 0, 0, 1, byte(protocol.CmdGetFrame)}
	if !bytes.Equal(data, want) {
		t.Fatalf("frame = %v, want %v", data, want)
	}

	msg, err := codec.ReadSingle(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ReadSingle: %v", err)
	}
	cmd, err := msg.Command()
	if err != nil || cmd != protocol.CmdGetFrame {
		t.Fatalf("Command() = %v, %v", cmd, err)
	}

	if _, err := codec.Marshal(codec.KindCommand, 3); err == nil {
		t.Fatal("expected error for non-Command value")
	}
}

func TestCommand_RejectsUnknownTag(t *testing.T) {
	t.Parallel()

	data := []byte{byte(codec.KindCommand), 0, 0, 0, 1, 42}
	msg, err := codec.ReadSingle(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ReadSingle: %v", err)
	}
	var fe *protocol.FramingError
	if _, err := msg.Command(); !errors.As(err, &fe) {
		t.Fatalf("Command() err = %v, want FramingError", err)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	t.Parallel()

	f := protocol.NewFrame(4, 3)
	for i := range f.Pixels {
		f.Pixels[i] = byte(i)
	}
	var buf bytes.Buffer
	if err := codec.Write(&buf, codec.KindFrame, f); err != nil {
		t.Fatalf("Write: %v", err)
	}
	msg, err := codec.ReadSingle(&buf)
	if err != nil {
		t.Fatalf("ReadSingle: %v", err)
	}
	got, err := msg.Frame()
	if err != nil {
		t.Fatalf("Frame(): %v", err)
	}
	if got.Width != 4 || got.Height != 3 || got.Digest() != f.Digest() {
		t.Fatalf("got %dx%d digest %x", got.Width, got.Height, got.Digest())
	}
}

func TestEmptyFrameRoundTrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := codec.Write(&buf, codec.KindFrame, protocol.Frame{}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	msg, err := codec.ReadSingle(&buf)
	if err != nil {
		t.Fatalf("ReadSingle: %v", err)
	}
	got, err := msg.Frame()
	if err != nil || !got.Empty() || len(got.Pixels) != 0 {
		t.Fatalf("Frame() = %+v, %v", got, err)
	}
}

func TestFrame_RejectsBadPixelCount(t *testing.T) {
	t.Parallel()

	bad := protocol.Frame{Width: 2, Height: 2, Pixels: make([]byte, 15)}
	var buf bytes.Buffer
	if err := codec.Write(&buf, codec.KindFrame, bad); err != nil {
		t.Fatalf("Write: %v", err)
	}
	msg, err := codec.ReadSingle(&buf)
	if err != nil {
		t.Fatalf("ReadSingle: %v", err)
	}
	var fe *protocol.FramingError
	if _, err := msg.Frame(); !errors.As(err, &fe) {
		t.Fatalf("Frame() err = %v, want FramingError", err)
	}
}

func TestBatchRoundTrip(t *testing.T) {
	t.Parallel()

	gc := action.NewGameCube()
	_ = gc.Press("A")
	_ = gc.SetStick("CStick", 0.5, -1)
	nun := action.NewWiiNunchuk()
	_ = nun.Press("Z")
	batch := action.Batch{0: gc, 2: nun}

	var buf bytes.Buffer
	if err := codec.Write(&buf, codec.KindBatch, batch.Wire()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	msg, err := codec.ReadSingle(&buf)
	if err != nil {
		t.Fatalf("ReadSingle: %v", err)
	}
	recs, err := msg.Batch()
	if err != nil {
		t.Fatalf("Batch(): %v", err)
	}
	got, err := action.FromWire(recs)
	if err != nil {
		t.Fatalf("FromWire: %v", err)
	}
	if len(got) != 2 || got[0] != gc || got[2] != nun {
		t.Fatalf("batch = %v", got)
	}
}

func TestMemoryRoundTrip(t *testing.T) {
	t.Parallel()

	v, err := protocol.IntValue(protocol.S16, -2)
	if err != nil {
		t.Fatal(err)
	}
	acc := protocol.MemoryAccess{Address: 0x80001234, Type: protocol.S16, Value: v}
	var buf bytes.Buffer
	if err := codec.Write(&buf, codec.KindMemoryRequest, acc); err != nil {
		t.Fatalf("Write: %v", err)
	}
	msg, err := codec.ReadSingle(&buf)
	if err != nil {
		t.Fatalf("ReadSingle: %v", err)
	}
	got, err := msg.MemoryAccess()
	if err != nil || got != acc {
		t.Fatalf("MemoryAccess() = %+v, %v", got, err)
	}

	buf.Reset()
	if err := codec.Write(&buf, codec.KindMemoryValue, v); err != nil {
		t.Fatalf("Write: %v", err)
	}
	msg, _ = codec.ReadSingle(&buf)
	gv, err := msg.Value()
	if err != nil || gv != v {
		t.Fatalf("Value() = %v, %v", gv, err)
	}
}

func TestEmptyPayload(t *testing.T) {
	t.Parallel()

	data, err := codec.Marshal(codec.KindEmpty, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != codec.HeaderSize {
		t.Fatalf("empty frame is %d bytes", len(data))
	}
	msg, err := codec.ReadSingle(bytes.NewReader(data))
	if err != nil || msg.Kind != codec.KindEmpty || len(msg.Payload) != 0 {
		t.Fatalf("ReadSingle = %+v, %v", msg, err)
	}
	if err := msg.Expect(codec.KindEmpty); err != nil {
		t.Fatal(err)
	}
}

func TestErrorReply(t *testing.T) {
	t.Parallel()

	cause := &protocol.InvalidControllerKindError{Kind: 9}
	var buf bytes.Buffer
	if err := codec.Write(&buf, codec.KindError, codec.ErrorReply(cause)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	msg, err := codec.ReadSingle(&buf)
	if err != nil {
		t.Fatalf("ReadSingle: %v", err)
	}

	// Expecting a frame but getting an error reply surfaces the remote error.
	_, err = msg.Frame()
	var remote *protocol.RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("Frame() err = %v, want RemoteError", err)
	}
	if remote.Code != protocol.CodeInvalidControllerKind || remote.Message != cause.Error() {
		t.Fatalf("remote = %+v", remote)
	}
}

func TestReadSingle_FramingErrors(t *testing.T) {
	t.Parallel()

	good, err := codec.Marshal(codec.KindPointer, protocol.Pointer{Port: 1, X: 0.25, Y: 0.75})
	if err != nil {
		t.Fatal(err)
	}
	oversize := make([]byte, codec.HeaderSize)
	oversize[0] = byte(codec.KindFrame)
	binary.BigEndian.PutUint32(oversize[1:], codec.MaxPayload+1)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short header", []byte{byte(codec.KindEmpty), 0}},
		{"unknown kind", []byte{200, 0, 0, 0, 0}},
		{"oversize", oversize},
		{"short payload", good[:len(good)-1]},
		{"trailing bytes", append(append([]byte(nil), good...), 0xff)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := codec.ReadSingle(bytes.NewReader(tt.data))
			var fe *protocol.FramingError
			if !errors.As(err, &fe) {
				t.Fatalf("err = %v, want FramingError", err)
			}
		})
	}
}

func TestDecode_RejectsTrailingPayloadBytes(t *testing.T) {
	t.Parallel()

	data, err := codec.Marshal(codec.KindPointer, protocol.Pointer{Port: 2, X: 1, Y: 1})
	if err != nil {
		t.Fatal(err)
	}
	// Extend the payload with junk and patch the length to cover it.
	data = append(data, 0, 0, 0)
	binary.BigEndian.PutUint32(data[1:codec.HeaderSize], uint32(len(data)-codec.HeaderSize))

	msg, err := codec.ReadSingle(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ReadSingle: %v", err)
	}
	var fe *protocol.FramingError
	if _, err := msg.Pointer(); !errors.As(err, &fe) {
		t.Fatalf("Pointer() err = %v, want FramingError", err)
	}
}

func TestExpect_KindMismatch(t *testing.T) {
	t.Parallel()

	msg := codec.Message{Kind: codec.KindEmpty}
	var fe *protocol.FramingError
	if _, err := msg.Pointer(); !errors.As(err, &fe) {
		t.Fatalf("err = %v, want FramingError", err)
	}
}

// A reader that returns data in tiny chunks still yields one whole frame.
func TestReadMessage_ChunkedReader(t *testing.T) {
	t.Parallel()

	data, err := codec.Marshal(codec.KindFrame, protocol.NewFrame(8, 8))
	if err != nil {
		t.Fatal(err)
	}
	msg, err := codec.ReadSingle(&chunked{r: bytes.NewReader(data), n: 3})
	if err != nil {
		t.Fatalf("ReadSingle: %v", err)
	}
	if _, err := msg.Frame(); err != nil {
		t.Fatal(err)
	}
}

type chunked struct {
	r io.Reader
	n int
}

func (c *chunked) Read(p []byte) (int, error) {
	if len(p) > c.n {
		p = p[:c.n]
	}
	return c.r.Read(p)
}
