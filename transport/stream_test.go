package transport_test

import (
	"bytes"
	"io"
	"io/ioutil"
	"strings"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/ferry/protocol"
	"github.com/luma/ferry/transport"
)

// rwBuffer is an in memory transport: reads come from in, writes go to out.
type rwBuffer struct {
	in  io.Reader
	out bytes.Buffer
}

func (b *rwBuffer) Read(p []byte) (int, error)  { return b.in.Read(p) }
func (b *rwBuffer) Write(p []byte) (int, error) { return b.out.Write(p) }

func newRW(input string) *rwBuffer {
	return &rwBuffer{in: strings.NewReader(input)}
}

var _ = Describe("transport / NegotiatedStream", func() {
	It("classifies a legacy stream and replays the prefix", func() {
		stream, err := transport.SniffNegotiationStream(newRW("@RSYNCD: 31.0\nrest"))
		Expect(err).To(Succeed())

		Expect(stream.Decision()).To(Equal(protocol.LegacyASCII))
		Expect(string(stream.SniffedPrefix())).To(Equal("@RSYNCD:"))
		Expect(stream.BufferedLen()).To(Equal(8))

		all, err := ioutil.ReadAll(stream)
		Expect(err).To(Succeed())
		Expect(string(all)).To(Equal("@RSYNCD: 31.0\nrest"))

		Expect(string(stream.SniffedPrefix())).To(Equal("@RSYNCD:"))
		Expect(stream.BufferedLen()).To(Equal(0))
	})

	It("classifies a binary stream from its first byte", func() {
		stream, err := transport.SniffNegotiationStream(newRW("\x00\x00\x00\x1f"))
		Expect(err).To(Succeed())

		Expect(stream.Decision()).To(Equal(protocol.Binary))
		Expect(stream.SniffedPrefix()).To(Equal([]byte{0x00}))

		all, err := ioutil.ReadAll(stream)
		Expect(err).To(Succeed())
		Expect(all).To(Equal([]byte{0x00, 0x00, 0x00, 0x1f}))
	})

	It("fails on a connection that closes before the prologue is decided", func() {
		_, err := transport.SniffNegotiationStream(newRW("@RS"))
		Expect(err).To(MatchError(protocol.ErrPrologueEOF))

		_, err = transport.SniffNegotiationStream(newRW(""))
		Expect(err).To(MatchError(protocol.ErrPrologueEOF))
	})

	It("reports the other prologue from EnsureDecision()", func() {
		stream, err := transport.SniffNegotiationStream(newRW("\x00"))
		Expect(err).To(Succeed())

		err = stream.EnsureDecision(protocol.LegacyASCII)
		Expect(err).To(MatchError(transport.ErrUnexpectedPrologue))

		var mismatch *transport.PrologueMismatchError
		Expect(err).To(BeAssignableToTypeOf(mismatch))
		Expect(err.(*transport.PrologueMismatchError).Actual).To(Equal(protocol.Binary))
	})

	Describe("ReadLine()", func() {
		It("keeps bytes after the newline buffered", func() {
			stream, err := transport.SniffNegotiationStream(newRW("@RSYNCD: 31.0\n#list\n"))
			Expect(err).To(Succeed())

			Expect(stream.ReadLine(protocol.MaxLegacyLineLen)).To(Equal("@RSYNCD: 31.0\n"))
			Expect(stream.ReadLine(protocol.MaxLegacyLineLen)).To(Equal("#list\n"))
		})

		It("rejects lines longer than the limit", func() {
			stream, err := transport.SniffNegotiationStream(newRW("@RSYNCD: " + strings.Repeat("9", 64) + "\n"))
			Expect(err).To(Succeed())

			_, err = stream.ReadLine(16)
			Expect(err).To(MatchError(protocol.ErrLineTooLong))
		})

		It("fails when the stream ends mid line", func() {
			stream, err := transport.SniffNegotiationStream(newRW("@RSYNCD: 31"))
			Expect(err).To(Succeed())

			_, err = stream.ReadLine(protocol.MaxLegacyLineLen)
			Expect(err).To(MatchError(protocol.ErrLegacyLineEOF))
		})
	})

	Describe("IntoParts()", func() {
		It("round trips the buffered bytes", func() {
			rw := newRW("@RSYNCD: 32.0\n")
			stream, err := transport.SniffNegotiationStream(rw)
			Expect(err).To(Succeed())

			parts := stream.IntoParts()
			Expect(parts.Decision).To(Equal(protocol.LegacyASCII))
			Expect(string(parts.Buffered)).To(Equal("@RSYNCD:"))
			Expect(parts.Inner).To(BeIdenticalTo(rw))

			clone := parts.Clone()
			clone.Buffered[0] = 'X'
			Expect(string(parts.Buffered)).To(Equal("@RSYNCD:"))

			rebuilt := parts.IntoStream()
			Expect(rebuilt.ReadLine(protocol.MaxLegacyLineLen)).To(Equal("@RSYNCD: 32.0\n"))
		})
	})

	It("writes straight to the transport", func() {
		rw := newRW("\x01")
		stream, err := transport.SniffNegotiationStream(rw)
		Expect(err).To(Succeed())

		_, err = stream.Write([]byte("hello"))
		Expect(err).To(Succeed())
		Expect(rw.out.String()).To(Equal("hello"))
	})
})
