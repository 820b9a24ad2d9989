package storage_test

import (
	"context"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/ferry/storage"
)

var _ = Describe("storage / Catalog", func() {
	var (
		ctx     context.Context
		store   *storage.InmemoryStore
		catalog *storage.Catalog
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = storage.NewInmemoryStore()
		catalog = storage.NewCatalog(store)
	})

	AfterEach(func() {
		store.Close()
	})

	It("round trips a module", func() {
		module := storage.Module{
			Name:      "pub.v2",
			Path:      "/srv/pub",
			Comment:   "Public files",
			Listable:  true,
			ReadOnly:  true,
			HostsDeny: []string{"10.*"},
		}

		Expect(catalog.Put(ctx, module)).To(Succeed())
		Expect(catalog.Module(ctx, "pub.v2")).To(Equal(module))
	})

	It("keeps numeric module names as object keys", func() {
		Expect(catalog.Put(ctx, storage.Module{Name: "2024", Listable: true})).To(Succeed())
		Expect(catalog.Put(ctx, storage.Module{Name: "pub", Listable: true})).To(Succeed())

		modules, err := catalog.Modules(ctx)
		Expect(err).To(Succeed())
		Expect(modules).To(HaveLen(2))
		Expect(modules[0].Name).To(Equal("2024"))
		Expect(modules[1].Name).To(Equal("pub"))

		Expect(catalog.Module(ctx, "2024")).To(Equal(storage.Module{Name: "2024", Listable: true}))

		backup, err := store.Backup()
		Expect(err).To(Succeed())
		Expect(len(backup)).To(BeNumerically("<", 256))

		Expect(catalog.Remove(ctx, "2024")).To(Succeed())
		Expect(catalog.Modules(ctx)).To(HaveLen(1))
	})

	It("reports updates under the path modules are read from", func() {
		updates := catalog.ListenToUpdates()

		Expect(catalog.Put(ctx, storage.Module{Name: "2024"})).To(Succeed())

		update := <-updates
		Expect(string(update.Key)).To(Equal("modules.2024"))
		Expect(storage.IsModuleUpdate(update)).To(BeTrue())
	})

	It("returns ErrModuleNotFound for unknown and invalid names", func() {
		_, err := catalog.Module(ctx, "missing")
		Expect(err).To(MatchError(storage.ErrModuleNotFound))

		_, err = catalog.Module(ctx, "a/b")
		Expect(err).To(MatchError(storage.ErrModuleNotFound))
	})

	It("rejects invalid modules", func() {
		Expect(catalog.Put(ctx, storage.Module{Name: ""})).To(MatchError(storage.ErrInvalidModuleName))
	})

	It("lists modules sorted by name", func() {
		Expect(catalog.Put(ctx, storage.Module{Name: "zeta", Listable: true})).To(Succeed())
		Expect(catalog.Put(ctx, storage.Module{Name: "alpha", Listable: true})).To(Succeed())

		modules, err := catalog.Modules(ctx)
		Expect(err).To(Succeed())
		Expect(modules).To(HaveLen(2))
		Expect(modules[0].Name).To(Equal("alpha"))
		Expect(modules[1].Name).To(Equal("zeta"))
	})

	It("returns no modules for an empty catalog", func() {
		Expect(catalog.Modules(ctx)).To(BeEmpty())
	})

	It("hides unlisted and denied modules from ListableModules()", func() {
		Expect(catalog.Put(ctx, storage.Module{Name: "open", Listable: true})).To(Succeed())
		Expect(catalog.Put(ctx, storage.Module{Name: "hidden", Listable: false})).To(Succeed())
		Expect(catalog.Put(ctx, storage.Module{Name: "lan", Listable: true, HostsAllow: []string{"10.*"}})).To(Succeed())

		modules, err := catalog.ListableModules(ctx, "192.0.2.1")
		Expect(err).To(Succeed())
		Expect(modules).To(HaveLen(1))
		Expect(modules[0].Name).To(Equal("open"))

		modules, err = catalog.ListableModules(ctx, "10.1.1.1")
		Expect(err).To(Succeed())
		Expect(modules).To(HaveLen(2))
	})

	It("removes modules", func() {
		Expect(catalog.Put(ctx, storage.Module{Name: "pub"})).To(Succeed())
		Expect(catalog.Remove(ctx, "pub")).To(Succeed())

		_, err := catalog.Module(ctx, "pub")
		Expect(err).To(MatchError(storage.ErrModuleNotFound))
	})

	It("stores the MOTD", func() {
		Expect(catalog.MOTD(ctx)).To(BeEmpty())

		Expect(catalog.SetMOTD(ctx, []string{"hello", "world"})).To(Succeed())
		Expect(catalog.MOTD(ctx)).To(Equal([]string{"hello", "world"}))
	})

	It("flags module updates", func() {
		updates := catalog.ListenToUpdates()

		Expect(catalog.SetMOTD(ctx, []string{"hi"})).To(Succeed())
		Expect(catalog.Put(ctx, storage.Module{Name: "pub"})).To(Succeed())

		Expect(storage.IsModuleUpdate(<-updates)).To(BeFalse())
		Expect(storage.IsModuleUpdate(<-updates)).To(BeTrue())
	})
})
