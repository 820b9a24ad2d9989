package cmd

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/luma/ferry/storage"
)

var _ = Describe("cmd / HTTP routes", func() {
	var router http.Handler

	BeforeEach(func() {
		catalog := storage.NewCatalog(storage.NewInmemoryStore())
		Expect(catalog.Put(context.Background(), storage.Module{Name: "pub", Path: "/srv/pub", Listable: true})).To(Succeed())

		registry := prometheus.NewRegistry()
		registry.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "ferry_test_total", Help: "test"}))

		engine := setupRouter(false, zap.NewNop())
		mountRoutes(engine, catalog, registry)
		router = engine
	})

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	It("answers pings", func() {
		rec := get("/ping")
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(Equal("pong"))
	})

	It("serves metrics", func() {
		rec := get("/metrics")
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("ferry_test_total"))
	})

	It("lists modules", func() {
		rec := get("/modules")
		Expect(rec.Code).To(Equal(http.StatusOK))

		var modules []storage.Module
		Expect(json.Unmarshal(rec.Body.Bytes(), &modules)).To(Succeed())
		Expect(modules).To(HaveLen(1))
		Expect(modules[0].Path).To(Equal("/srv/pub"))
	})

	It("returns 404 for unknown modules", func() {
		rec := get("/modules/nope")
		Expect(rec.Code).To(Equal(http.StatusNotFound))
		Expect(strings.ToLower(rec.Body.String())).To(ContainSubstring("module not found"))
	})
})
