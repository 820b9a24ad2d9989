package storage_test

import (
	"context"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/ferry/storage"
)

var _ = Describe("storage / InmemoryStore", func() {
	Describe("Close()", func() {
		It("does not panic when closed twice", func() {
			store := storage.NewInmemoryStore()
			defer store.Close()

			Expect(func() { store.Close() }).NotTo(Panic())
			Expect(func() { store.Close() }).NotTo(Panic())
		})

		It("closes update channels and rejects writes", func() {
			store := storage.NewInmemoryStore()
			updateChan := store.ListenToUpdates()

			Expect(store.Close()).To(Succeed())

			_, ok := <-updateChan
			Expect(ok).To(BeFalse())

			Expect(store.Set(context.Background(), []byte("foo"), "bar")).To(MatchError(storage.ErrStoreClosed))
			Expect(store.Delete(context.Background(), []byte("foo"))).To(MatchError(storage.ErrStoreClosed))

			_, ok = <-store.ListenToUpdates()
			Expect(ok).To(BeFalse())
		})
	})

	It("an empty inmemory store equals {}", func() {
		store := storage.NewInmemoryStore()
		defer store.Close()

		value, err := store.Backup()
		Expect(err).To(Succeed())
		Expect(string(value)).To(Equal(`{}`))
	})

	Describe("Set() / Get()", func() {
		It("can read a key that is written", func() {
			store := storage.NewInmemoryStore()
			defer store.Close()

			err := store.Set(context.Background(), []byte("foo"), "bar")
			Expect(err).To(Succeed())

			Expect(store.Get(context.Background(), []byte("foo"))).To(Equal([]byte(`"bar"`)))

			value, err := store.Backup()
			Expect(err).To(Succeed())
			Expect(string(value)).To(Equal(`{"foo":"bar"}`))
		})

		It("returns nothing for a missing key", func() {
			store := storage.NewInmemoryStore()
			defer store.Close()

			Expect(store.Get(context.Background(), []byte("missing"))).To(BeEmpty())
		})

		It("sends on the update channel when values are set", func() {
			store := storage.NewInmemoryStore()
			defer store.Close()

			updateChan := store.ListenToUpdates()
			err := store.Set(context.Background(), []byte("foo"), "bar")
			Expect(err).To(Succeed())

			update, ok := <-updateChan
			Expect(ok).To(BeTrue())
			Expect(update).To(Equal(&storage.Update{
				Key:   []byte("foo"),
				Value: []byte(`"bar"`),
			}))
		})
	})

	Describe("Delete()", func() {
		It("removes the key and publishes an empty value", func() {
			store := storage.NewInmemoryStore()
			defer store.Close()

			Expect(store.Set(context.Background(), []byte("foo"), "bar")).To(Succeed())
			updateChan := store.ListenToUpdates()

			Expect(store.Delete(context.Background(), []byte("foo"))).To(Succeed())
			Expect(store.Get(context.Background(), []byte("foo"))).To(BeEmpty())

			update := <-updateChan
			Expect(update.Key).To(Equal([]byte("foo")))
			Expect(update.Value).To(BeEmpty())
		})
	})

	Describe("Restore()", func() {
		It("replaces the document", func() {
			store := storage.NewInmemoryStore()
			defer store.Close()

			Expect(store.Restore([]byte(`{"a":1}`))).To(Succeed())
			Expect(store.Get(context.Background(), []byte("a"))).To(Equal([]byte(`1`)))
		})

		It("rejects invalid JSON", func() {
			store := storage.NewInmemoryStore()
			defer store.Close()

			Expect(store.Restore([]byte(`{"a":`))).To(MatchError(storage.ErrInvalidBackup))
		})
	})
})
