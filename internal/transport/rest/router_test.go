package rest

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/frahmantamala/expense-approval/internal/auth"
	"github.com/frahmantamala/expense-approval/internal/transport"
	"github.com/go-chi/chi"
	"github.com/jmoiron/sqlx"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestRest(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "REST Suite")
}

var _ = ginkgo.Describe("Router", func() {
	var (
		router *chi.Mux
		db     *sqlx.DB
	)

	ginkgo.BeforeEach(func() {
		gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		sqlDB, err := gdb.DB()
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		db = sqlx.NewDb(sqlDB, "sqlite3")

		base := transport.NewBaseHandler(slog.New(slog.NewTextHandler(io.Discard, nil)))
		router = chi.NewRouter()
		// Services are never reached by the requests below.
		RegisterAllRoutes(router, base, Handlers{
			Health: NewHealthHandler(db, func() int { return 3 }),
			Auth:   auth.NewHandler(base, nil),
		}, Options{AllowedOrigins: []string{"https://app.example.com"}})
	})

	serve := func(req *http.Request) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	ginkgo.It("answers liveness with a trace id", func() {
		rec := serve(httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil))
		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
		gomega.Expect(rec.Header().Get("X-Trace-ID")).NotTo(gomega.BeEmpty())
	})

	ginkgo.It("reports database and queue health", func() {
		rec := serve(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))

		var resp HealthResponse
		gomega.Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(gomega.Succeed())
		gomega.Expect(resp.Status).To(gomega.Equal(HealthHealthy))
		gomega.Expect(resp.Components).To(gomega.HaveKey("postgres"))
		gomega.Expect(resp.Components["notifications"].Details["queued"]).To(gomega.BeNumerically("==", 3))
	})

	ginkgo.It("reports unhealthy when the database is gone", func() {
		gomega.Expect(db.Close()).To(gomega.Succeed())
		rec := serve(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusServiceUnavailable))
	})

	ginkgo.DescribeTable("protects workflow routes",
		func(method, path string) {
			rec := serve(httptest.NewRequest(method, path, nil))
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusUnauthorized))
		},
		ginkgo.Entry("list", http.MethodGet, "/api/v1/expenses"),
		ginkgo.Entry("submit", http.MethodPost, "/api/v1/expenses/1/submit"),
		ginkgo.Entry("approve", http.MethodPost, "/api/v1/expenses/1/approve"),
		ginkgo.Entry("pay", http.MethodPost, "/api/v1/expenses/1/payment"),
		ginkgo.Entry("inbox", http.MethodGet, "/api/v1/approvals/inbox"),
		ginkgo.Entry("site summary", http.MethodGet, "/api/v1/sites/1/summary"),
	)

	ginkgo.It("answers CORS preflight for allowed origins", func() {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/expenses", nil)
		req.Header.Set("Origin", "https://app.example.com")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := serve(req)
		gomega.Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(gomega.Equal("https://app.example.com"))
	})
})
