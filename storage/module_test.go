package storage_test

import (
	. "github.com/onsi/ginkgo"
	"github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"

	"github.com/luma/ferry/storage"
)

var _ = Describe("storage / Module", func() {
	table.DescribeTable("ValidateModuleName()",
		func(name string, valid bool) {
			err := storage.ValidateModuleName(name)
			if valid {
				Expect(err).To(Succeed())
			} else {
				Expect(err).To(MatchError(storage.ErrInvalidModuleName))
			}
		},
		table.Entry("plain", "pub", true),
		table.Entry("dotted", "pub.v2", true),
		table.Entry("empty", "", false),
		table.Entry("slash", "a/b", false),
		table.Entry("space", "a b", false),
		table.Entry("hash", "#list", false),
		table.Entry("at", "@RSYNCD", false),
	)

	Describe("Validate()", func() {
		It("rejects a negative connection limit", func() {
			module := storage.Module{Name: "pub", MaxConnections: -1}
			Expect(module.Validate()).To(MatchError(storage.ErrInvalidMaxConnections))
		})

		It("rejects host patterns that do not compile", func() {
			module := storage.Module{Name: "pub", HostsAllow: []string{"10.[0"}}
			Expect(module.Validate()).To(MatchError(storage.ErrInvalidHostPattern))
		})
	})

	Describe("Permits()", func() {
		It("allows everyone when no lists are set", func() {
			Expect(storage.Module{Name: "pub"}.Permits("192.0.2.1")).To(BeTrue())
		})

		It("only allows matching hosts when an allow list is set", func() {
			module := storage.Module{Name: "pub", HostsAllow: []string{"10.0.*", "127.0.0.1"}}

			Expect(module.Permits("10.0.3.4")).To(BeTrue())
			Expect(module.Permits("127.0.0.1")).To(BeTrue())
			Expect(module.Permits("192.0.2.1")).To(BeFalse())
		})

		It("lets deny win over allow", func() {
			module := storage.Module{
				Name:       "pub",
				HostsAllow: []string{"10.*"},
				HostsDeny:  []string{"10.0.0.66"},
			}

			Expect(module.Permits("10.0.0.1")).To(BeTrue())
			Expect(module.Permits("10.0.0.66")).To(BeFalse())
		})
	})

	It("requires auth when users are listed", func() {
		Expect(storage.Module{Name: "pub"}.RequiresAuth()).To(BeFalse())
		Expect(storage.Module{Name: "pub", AuthUsers: []string{"alice"}}.RequiresAuth()).To(BeTrue())
	})
})
