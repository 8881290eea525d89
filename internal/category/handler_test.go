package category_test

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"

	"github.com/frahmantamala/expense-approval/internal/category"
	categoryPostgres "github.com/frahmantamala/expense-approval/internal/category/postgres"
	categoryDatamodel "github.com/frahmantamala/expense-approval/internal/core/datamodel/category"
	"github.com/frahmantamala/expense-approval/internal/transport"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var _ = Describe("Category Handler Integration", func() {
	var (
		db      *gorm.DB
		service *category.Service
		handler *category.Handler
		slogger *slog.Logger
	)

	BeforeEach(func() {
		var err error
		slogger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		Expect(err).NotTo(HaveOccurred())

		err = db.AutoMigrate(&categoryDatamodel.ExpenseCategory{})
		Expect(err).NotTo(HaveOccurred())

		repo := categoryPostgres.NewCategoryRepository(db)
		service = category.NewService(repo, slogger)
		handler = category.NewHandler(&transport.BaseHandler{Logger: slogger}, service)

		_, err = service.SyncCatalogue()
		Expect(err).NotTo(HaveOccurred())
		Expect(service.SetActive("Miscellaneous", false)).To(Succeed())
	})

	It("should handle GET /categories request successfully", func() {
		req := httptest.NewRequest(http.MethodGet, "/categories", nil)
		w := httptest.NewRecorder()

		handler.GetCategories(w, req)

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Header().Get("Content-Type")).To(ContainSubstring("application/json"))

		var response category.CategoriesResponse
		err := json.NewDecoder(w.Body).Decode(&response)
		Expect(err).NotTo(HaveOccurred())

		Expect(response.Categories).To(HaveLen(8))
		Expect(response.Categories[0].Name).To(Equal("Travel"))
		Expect(response.Categories[3].Code).To(Equal("vehicle_km"))
		for _, cat := range response.Categories {
			Expect(cat.Name).NotTo(Equal("Miscellaneous"))
			Expect(cat.Description).NotTo(BeEmpty())
		}
	})
})
