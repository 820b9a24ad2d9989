package protocol_test

import (
	"bytes"
	"errors"
	"io"
	"io/ioutil"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/ferry/protocol"
)

var _ = Describe("Multiplexing", func() {
	Describe("WriteMessage() / ReadMessage()", func() {
		It("frames the payload behind its header", func() {
			w := bytes.NewBuffer([]byte{})
			Expect(protocol.WriteMessage(w, protocol.MsgInfo, []byte("hello"))).To(Succeed())

			Expect(w.Bytes()).To(Equal([]byte{0x05, 0x00, 0x00, 0x09, 'h', 'e', 'l', 'l', 'o'}))

			frame, err := protocol.ReadMessage(w)
			Expect(err).To(Succeed())
			Expect(frame.Code).To(Equal(protocol.MsgInfo))
			Expect(frame.Text()).To(Equal("hello"))
		})

		It("returns io.EOF between frames", func() {
			_, err := protocol.ReadMessage(bytes.NewReader(nil))
			Expect(err).To(Equal(io.EOF))
		})

		It("reports a truncated payload", func() {
			_, err := protocol.ReadMessage(bytes.NewReader([]byte{0x05, 0x00, 0x00, 0x09, 'h'}))
			Expect(errors.Is(err, io.ErrUnexpectedEOF)).To(BeTrue())
		})
	})

	Describe("MultiplexWriter", func() {
		It("splits data into bounded MSG_DATA frames", func() {
			w := bytes.NewBuffer([]byte{})
			data := bytes.Repeat([]byte{0xAB}, protocol.MaxDataFrameLen+10)

			n, err := protocol.NewMultiplexWriter(w).Write(data)
			Expect(err).To(Succeed())
			Expect(n).To(Equal(len(data)))

			first, err := protocol.ReadMessage(w)
			Expect(err).To(Succeed())
			Expect(first.Code).To(Equal(protocol.MsgData))
			Expect(first.Payload).To(HaveLen(protocol.MaxDataFrameLen))

			second, err := protocol.ReadMessage(w)
			Expect(err).To(Succeed())
			Expect(second.Payload).To(HaveLen(10))
		})

		It("sends log text under the matching code", func() {
			w := bytes.NewBuffer([]byte{})
			mw := protocol.NewMultiplexWriter(w)

			Expect(mw.WriteWarning("careful")).To(Succeed())
			Expect(mw.WriteErrorExit(1)).To(Succeed())
			Expect(mw.WriteLog(protocol.LogNone, "nowhere")).NotTo(Succeed())

			warning, err := protocol.ReadMessage(w)
			Expect(err).To(Succeed())
			Expect(warning.Code).To(Equal(protocol.MsgWarning))

			exit, err := protocol.ReadMessage(w)
			Expect(err).To(Succeed())
			Expect(exit.Code).To(Equal(protocol.MsgErrorExit))
			Expect(protocol.DecodeExitCode(exit.Payload)).To(Equal(int32(1)))
		})
	})

	Describe("MultiplexReader", func() {
		It("yields data and dispatches everything else", func() {
			w := bytes.NewBuffer([]byte{})
			mw := protocol.NewMultiplexWriter(w)

			_, err := mw.Write([]byte("abc"))
			Expect(err).To(Succeed())
			Expect(mw.WriteInfo("note")).To(Succeed())
			_, err = mw.Write([]byte("def"))
			Expect(err).To(Succeed())

			var seen []protocol.MessageFrame
			r := protocol.NewMultiplexReader(w, func(frame protocol.MessageFrame) error {
				seen = append(seen, frame)
				return nil
			})

			data, err := ioutil.ReadAll(r)
			Expect(err).To(Succeed())
			Expect(string(data)).To(Equal("abcdef"))
			Expect(seen).To(HaveLen(1))
			Expect(seen[0].Text()).To(Equal("note"))
		})

		It("stops when the handler fails", func() {
			w := bytes.NewBuffer([]byte{})
			Expect(protocol.WriteMessage(w, protocol.MsgError, []byte("bad"))).To(Succeed())

			r := protocol.NewMultiplexReader(w, func(frame protocol.MessageFrame) error {
				return errors.New(frame.Text())
			})

			_, err := r.Read(make([]byte, 8))
			Expect(err).To(MatchError("bad"))
		})
	})
})
