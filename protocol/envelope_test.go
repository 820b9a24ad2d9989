package protocol_test

import (
	"errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/ferry/protocol"
)

var _ = Describe("Envelope", func() {
	Describe("MessageHeader", func() {
		It("round trips every code with empty, single byte and maximum payloads", func() {
			for _, code := range protocol.MessageCodes() {
				for _, length := range []uint32{0, 1, protocol.MaxPayloadLength} {
					header, err := protocol.NewMessageHeader(code, length)
					Expect(err).To(Succeed())

					encoded := header.Encode()
					decoded, err := protocol.DecodeMessageHeader(encoded[:])
					Expect(err).To(Succeed())
					Expect(decoded).To(Equal(header), "%s/%d", code, length)
					Expect(decoded.Code()).To(Equal(code))
					Expect(decoded.PayloadLen()).To(Equal(length))

					fromRaw, err := protocol.MessageHeaderFromRaw(header.EncodeRaw())
					Expect(err).To(Succeed())
					Expect(fromRaw).To(Equal(header))
				}
			}
		})

		It("encodes little-endian with the tag in the high byte", func() {
			header, err := protocol.NewMessageHeader(protocol.MsgInfo, 5)
			Expect(err).To(Succeed())

			Expect(header.Encode()).To(Equal([protocol.HeaderLen]byte{0x05, 0x00, 0x00, 0x09}))
			Expect(header.EncodeRaw()).To(Equal(uint32(0x09000005)))
		})

		It("rejects payloads that don't fit in 24 bits", func() {
			_, err := protocol.NewMessageHeader(protocol.MsgData, protocol.MaxPayloadLength+1)
			Expect(errors.Is(err, protocol.ErrOversizedPayload)).To(BeTrue())

			var envErr *protocol.EnvelopeError
			Expect(errors.As(err, &envErr)).To(BeTrue())
			Expect(envErr.Length).To(Equal(uint32(protocol.MaxPayloadLength + 1)))
		})

		It("reports truncated headers with the available length", func() {
			_, err := protocol.DecodeMessageHeader([]byte{0x00, 0x00, 0x07})
			Expect(errors.Is(err, protocol.ErrTruncatedHeader)).To(BeTrue())

			var envErr *protocol.EnvelopeError
			Expect(errors.As(err, &envErr)).To(BeTrue())
			Expect(envErr.Actual).To(Equal(3))
		})

		It("rejects tags below MPLEX_BASE", func() {
			_, err := protocol.DecodeMessageHeader([]byte{0x00, 0x00, 0x00, 0x06})
			Expect(errors.Is(err, protocol.ErrInvalidTag)).To(BeTrue())

			var envErr *protocol.EnvelopeError
			Expect(errors.As(err, &envErr)).To(BeTrue())
			Expect(envErr.Tag).To(Equal(uint8(6)))
		})

		It("rejects codes that aren't defined", func() {
			_, err := protocol.DecodeMessageHeader([]byte{0x00, 0x00, 0x00, protocol.MplexBase + 11})
			Expect(errors.Is(err, protocol.ErrUnknownMessageCode)).To(BeTrue())

			var envErr *protocol.EnvelopeError
			Expect(errors.As(err, &envErr)).To(BeTrue())
			Expect(envErr.Code).To(Equal(uint8(11)))
		})

		It("ignores trailing bytes after the header", func() {
			header, err := protocol.DecodeMessageHeader([]byte{0x02, 0x00, 0x00, 0x07, 0xAA, 0xBB})
			Expect(err).To(Succeed())
			Expect(header.Code()).To(Equal(protocol.MsgData))
			Expect(header.PayloadLen()).To(Equal(uint32(2)))
		})

		It("refuses to encode into a short slice", func() {
			header, _ := protocol.NewMessageHeader(protocol.MsgData, 1)

			err := header.EncodeInto(make([]byte, 2))
			Expect(errors.Is(err, protocol.ErrTruncatedHeader)).To(BeTrue())

			dst := make([]byte, 6)
			Expect(header.EncodeInto(dst)).To(Succeed())
			Expect(dst[:4]).To(Equal([]byte{0x01, 0x00, 0x00, 0x07}))
		})
	})

	Describe("MessageCode", func() {
		It("round trips names", func() {
			for _, code := range protocol.MessageCodes() {
				parsed, err := protocol.ParseMessageCode(code.String())
				Expect(err).To(Succeed())
				Expect(parsed).To(Equal(code))
			}
		})

		It("accepts MSG_FLUSH as an alias of MSG_INFO", func() {
			code, err := protocol.ParseMessageCode("MSG_FLUSH")
			Expect(err).To(Succeed())
			Expect(code).To(Equal(protocol.MsgInfo))
			Expect(code.String()).To(Equal("MSG_INFO"))
		})

		It("rejects unknown names", func() {
			_, err := protocol.ParseMessageCode("MSG_BOGUS")
			Expect(err).To(MatchError(`unknown multiplexed message code name: "MSG_BOGUS"`))
		})

		It("lists codes in ascending order", func() {
			codes := protocol.MessageCodes()
			Expect(codes).To(HaveLen(18))
			Expect(codes[0]).To(Equal(protocol.MsgData))
			Expect(codes[len(codes)-1]).To(Equal(protocol.MsgNoSend))
		})

		It("maps logging codes to log codes", func() {
			logging := []protocol.MessageCode{
				protocol.MsgErrorXfer, protocol.MsgInfo, protocol.MsgError, protocol.MsgWarning,
				protocol.MsgErrorSocket, protocol.MsgLog, protocol.MsgClient, protocol.MsgErrorUTF8,
			}

			for _, code := range logging {
				Expect(code.IsLogging()).To(BeTrue(), code.String())

				logCode, err := code.AsLogCode()
				Expect(err).To(Succeed())

				back, err := logCode.AsMessageCode()
				Expect(err).To(Succeed())
				Expect(back).To(Equal(code))
			}

			_, err := protocol.MsgData.AsLogCode()
			var convErr *protocol.LogCodeConversionError
			Expect(errors.As(err, &convErr)).To(BeTrue())
			Expect(convErr.HasMessage).To(BeTrue())
			Expect(convErr.Message).To(Equal(protocol.MsgData))
		})
	})

	Describe("LogCode", func() {
		It("round trips names", func() {
			for _, code := range protocol.LogCodes() {
				parsed, err := protocol.ParseLogCode(code.String())
				Expect(err).To(Succeed())
				Expect(parsed).To(Equal(code))
			}

			Expect(protocol.LogErrorUTF8.String()).To(Equal("FERROR_UTF8"))
		})

		It("rejects unknown values and names", func() {
			_, err := protocol.LogCodeFromUint8(9)
			Expect(err).To(MatchError("unknown log code value: 9"))

			_, err = protocol.ParseLogCode("FUNKNOWN")
			Expect(err).To(MatchError(`unknown log code name: "FUNKNOWN"`))
		})

		It("has no message code for FNONE", func() {
			_, err := protocol.LogNone.AsMessageCode()

			var convErr *protocol.LogCodeConversionError
			Expect(errors.As(err, &convErr)).To(BeTrue())
			Expect(convErr.Log).To(Equal(protocol.LogNone))
			Expect(convErr.HasMessage).To(BeFalse())
		})
	})
})
