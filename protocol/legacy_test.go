package protocol_test

import (
	"bytes"
	"errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"

	"github.com/luma/ferry/protocol"
)

var _ = Describe("Legacy daemon lines", func() {
	Describe("ParseLegacyDaemonGreetingDetails()", func() {
		It("parses a plain greeting", func() {
			greeting, err := protocol.ParseLegacyDaemonGreetingDetails("@RSYNCD: 31.0\n")
			Expect(err).To(Succeed())
			Expect(greeting.Protocol).To(Equal(protocol.ProtocolVersion31))
			Expect(greeting.AdvertisedProtocol).To(Equal(uint32(31)))
			Expect(greeting.HasSubprotocol).To(BeTrue())
			Expect(greeting.Subprotocol).To(Equal(uint32(0)))
			Expect(greeting.HasDigestList()).To(BeFalse())
		})

		It("keeps the digest list", func() {
			greeting, err := protocol.ParseLegacyDaemonGreetingDetails("@RSYNCD: 31.0 md4 md5\r\n")
			Expect(err).To(Succeed())
			Expect(greeting.DigestList).To(Equal("md4 md5"))
			Expect(greeting.Digests()).To(Equal([]string{"md4", "md5"}))
		})

		It("accepts greetings without a subprotocol or space", func() {
			greeting, err := protocol.ParseLegacyDaemonGreetingDetails("@RSYNCD:29")
			Expect(err).To(Succeed())
			Expect(greeting.Protocol).To(Equal(protocol.ProtocolVersion29))
			Expect(greeting.HasSubprotocol).To(BeFalse())
		})

		It("clamps future versions, saturating huge numbers", func() {
			greeting, err := protocol.ParseLegacyDaemonGreetingDetails("@RSYNCD: 99999999999999.0\n")
			Expect(err).To(Succeed())
			Expect(greeting.Protocol).To(Equal(protocol.Newest))
			Expect(greeting.AdvertisedProtocol).To(Equal(uint32(4294967295)))
		})

		It("rejects versions that are too old", func() {
			_, err := protocol.ParseLegacyDaemonGreeting("@RSYNCD: 27.0\n")
			Expect(errors.Is(err, protocol.ErrUnsupportedVersion)).To(BeTrue())
		})

		DescribeTable("rejects malformed greetings",
			func(line string) {
				_, err := protocol.ParseLegacyDaemonGreetingDetails(line)

				var malformed *protocol.MalformedGreetingError
				Expect(errors.As(err, &malformed)).To(BeTrue(), "%q", line)
				Expect(malformed.Line).To(Equal(line))
			},
			Entry("wrong prefix", "@RSYNCX: 31.0\n"),
			Entry("no digits", "@RSYNCD: \n"),
			Entry("empty fraction", "@RSYNCD: 31.\n"),
			Entry("junk after version", "@RSYNCD: 31abc\n"),
			Entry("not utf8", "@RSYNCD: 31.0 \xff\n"),
			Entry("empty", ""),
		)
	})

	Describe("ParseLegacyDaemonMessage()", func() {
		DescribeTable("classifies lines",
			func(line string, kind protocol.LegacyMessageKind, text string) {
				msg, err := protocol.ParseLegacyDaemonMessage(line)
				Expect(err).To(Succeed())
				Expect(msg.Kind).To(Equal(kind), kind.String())
				Expect(msg.Text).To(Equal(text))
			},
			Entry("ok", "@RSYNCD: OK\n", protocol.LegacyMessageOK, ""),
			Entry("exit", "@RSYNCD: EXIT\n", protocol.LegacyMessageExit, ""),
			Entry("auth", "@RSYNCD: AUTHREQD c2FsdA\n", protocol.LegacyMessageAuthRequired, "c2FsdA"),
			Entry("capabilities", "@RSYNCD: CAP modules authlist\n", protocol.LegacyMessageCapabilities, "modules authlist"),
			Entry("error", "@ERROR: Unknown module 'nope'\n", protocol.LegacyMessageError, "Unknown module 'nope'"),
			Entry("warning", "@WARNING: slow down\n", protocol.LegacyMessageWarning, "slow down"),
			Entry("module listing", "pub            \tPublic files\n", protocol.LegacyMessageText, "pub            \tPublic files"),
			Entry("unknown keyword", "@RSYNCD: WAT\n", protocol.LegacyMessageOther, "WAT"),
		)

		It("parses version lines", func() {
			msg, err := protocol.ParseLegacyDaemonMessage("@RSYNCD: 30.0 md5\n")
			Expect(err).To(Succeed())
			Expect(msg.Kind).To(Equal(protocol.LegacyMessageVersion))
			Expect(msg.Greeting.Protocol).To(Equal(protocol.ProtocolVersion30))
			Expect(msg.Greeting.DigestList).To(Equal("md5"))
		})

		It("does not treat @ERRORS as an error line", func() {
			_, ok := protocol.ParseLegacyErrorMessage("@ERRORS everywhere")
			Expect(ok).To(BeFalse())
		})
	})

	Describe("Writers", func() {
		It("formats the greeting", func() {
			Expect(protocol.FormatLegacyDaemonGreeting(protocol.ProtocolVersion32)).To(Equal("@RSYNCD: 32.0\n"))
			Expect(protocol.FormatLegacyDaemonGreeting(protocol.ProtocolVersion31, "md5", "md4")).To(Equal("@RSYNCD: 31.0 md5 md4\n"))
		})

		It("writes control lines", func() {
			w := bytes.NewBuffer([]byte{})

			Expect(protocol.WriteLegacyOK(w)).To(Succeed())
			Expect(protocol.WriteLegacyError(w, "nope")).To(Succeed())
			Expect(protocol.WriteLegacyExit(w)).To(Succeed())

			Expect(w.String()).To(Equal("@RSYNCD: OK\n@ERROR: nope\n@RSYNCD: EXIT\n"))
		})

		It("writes several lines at once", func() {
			w := bytes.NewBuffer([]byte{})

			Expect(protocol.WriteLegacyLines(w, "one", "two")).To(Succeed())
			Expect(w.String()).To(Equal("one\ntwo\n"))

			w.Reset()
			Expect(protocol.WriteLegacyLines(w)).To(Succeed())
			Expect(w.Len()).To(Equal(0))
		})

		It("round trips module listings", func() {
			line := protocol.FormatModuleListing("pub", "Public files")

			name, comment := protocol.ParseModuleListing(line + "\n")
			Expect(name).To(Equal("pub"))
			Expect(comment).To(Equal("Public files"))
		})

		It("strips line endings", func() {
			Expect(protocol.RemoveTrailingNewline([]byte("abc\r\n"))).To(Equal([]byte("abc")))
			Expect(protocol.RemoveTrailingNewline([]byte("abc"))).To(Equal([]byte("abc")))
		})
	})
})
