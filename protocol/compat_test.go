package protocol_test

import (
	"bytes"
	"errors"
	"io"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/ferry/protocol"
)

var _ = Describe("CompatibilityFlags", func() {
	It("renders names joined with pipes", func() {
		flags := protocol.CompatIncRecurse | protocol.CompatSymlinkTimes

		Expect(flags.String()).To(Equal("CF_INC_RECURSE | CF_SYMLINK_TIMES"))
		Expect(protocol.CompatNone.String()).To(Equal("CF_NONE"))
		Expect((protocol.CompatID0Names | 1<<20).String()).To(Equal("CF_ID0_NAMES | unknown(0x100000)"))
	})

	It("encodes single flags as one byte until the high bit", func() {
		Expect(protocol.CompatIncRecurse.Encode()).To(Equal([]byte{0x01}))
		Expect(protocol.CompatSymlinkTimes.Encode()).To(Equal([]byte{0x02}))
		Expect(protocol.CompatChecksumSeedFix.Encode()).To(Equal([]byte{0x20}))
		Expect(protocol.CompatVarintFlistFlags.Encode()).To(Equal([]byte{0x80, 0x80}))
		Expect(protocol.CompatID0Names.Encode()).To(Equal([]byte{0x81, 0x00}))
	})

	It("reads back what it writes", func() {
		flags := protocol.KnownCompatibilityFlags()

		w := bytes.NewBuffer([]byte{})
		_, err := flags.WriteTo(w)
		Expect(err).To(Succeed())

		read, err := protocol.ReadCompatibilityFlags(w)
		Expect(err).To(Succeed())
		Expect(read).To(Equal(flags))
		Expect(read.UnknownBits()).To(BeZero())
	})

	It("parses flag names", func() {
		flags, err := protocol.ParseCompatibilityFlags("CF_SYMLINK_TIMES | cf_safe_flist")
		Expect(err).To(Succeed())
		Expect(flags).To(Equal(protocol.CompatSymlinkTimes | protocol.CompatSafeFileList))

		flags, err = protocol.ParseCompatibilityFlags("")
		Expect(err).To(Succeed())
		Expect(flags.IsEmpty()).To(BeTrue())

		_, err = protocol.ParseCompatibilityFlags("CF_WARP_DRIVE")
		Expect(err).To(HaveOccurred())
	})

	It("checks containment", func() {
		flags := protocol.CompatSafeFileList.Union(protocol.CompatInplacePartialDir)

		Expect(flags.Contains(protocol.CompatSafeFileList)).To(BeTrue())
		Expect(flags.Contains(protocol.CompatSafeFileList | protocol.CompatIncRecurse)).To(BeFalse())
	})
})

var _ = Describe("Varint", func() {
	It("round trips across every encoded width", func() {
		values := []int32{0, 1, 0x7F, 0x80, 0xFF, 0x3FFF, 0x4000, 0x1FFFFF, 0x200000, 0x0FFFFFFF, 0x10000000, 0x7FFFFFFF, -1}

		for _, v := range values {
			encoded := protocol.AppendVarint(nil, v)

			decoded, rest, err := protocol.DecodeVarint(append(encoded, 0xEE))
			Expect(err).To(Succeed(), "%d", v)
			Expect(decoded).To(Equal(v))
			Expect(rest).To(Equal([]byte{0xEE}))

			read, err := protocol.ReadVarint(bytes.NewReader(encoded))
			Expect(err).To(Succeed())
			Expect(read).To(Equal(v))
		}
	})

	It("uses one byte for small values", func() {
		Expect(protocol.AppendVarint(nil, 0x7F)).To(HaveLen(1))
		Expect(protocol.AppendVarint(nil, 0x80)).To(HaveLen(2))
		Expect(protocol.AppendVarint(nil, -1)).To(HaveLen(5))
	})

	It("reports truncated input", func() {
		_, err := protocol.ReadVarint(bytes.NewReader([]byte{0xC0, 0x01}))
		Expect(errors.Is(err, io.ErrUnexpectedEOF)).To(BeTrue())

		_, _, err = protocol.DecodeVarint([]byte{0x80})
		Expect(errors.Is(err, io.ErrUnexpectedEOF)).To(BeTrue())
	})

	It("rejects first bytes announcing more than four extra bytes", func() {
		_, err := protocol.ReadVarint(bytes.NewReader([]byte{0xF8, 0, 0, 0, 0, 0}))
		Expect(errors.Is(err, protocol.ErrInvalidVarint)).To(BeTrue())
	})
})
