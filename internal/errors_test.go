package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
)

var _ = ginkgo.Describe("AppError", func() {
	ginkgo.It("matches sentinels by code through wrapping", func() {
		err := fmt.Errorf("load: %w", ErrExpenseNotFound.WithMessage("expense 7 not found"))
		gomega.Expect(errors.Is(err, ErrExpenseNotFound)).To(gomega.BeTrue())
		gomega.Expect(errors.Is(err, ErrSiteNotFound)).To(gomega.BeFalse())
		gomega.Expect(IsNotFound(err)).To(gomega.BeTrue())
	})

	ginkgo.It("classifies by type", func() {
		gomega.Expect(IsDuplicate(NewConflictError("taken", ErrCodeDuplicateEmail))).To(gomega.BeTrue())
		gomega.Expect(IsInvalidState(ErrConcurrentModification)).To(gomega.BeTrue())
		gomega.Expect(IsNotAuthorized(ErrNotAuthorized)).To(gomega.BeTrue())
		gomega.Expect(IsValidation(errors.New("plain"))).To(gomega.BeFalse())
	})

	ginkgo.It("leaves the sentinel untouched when cloning", func() {
		_ = ErrInvalidState.WithMessage("changed")
		gomega.Expect(ErrInvalidState.Message).To(gomega.Equal("operation not allowed in current status"))
	})

	ginkgo.It("reports the first field error as its message", func() {
		err := NewValidationFieldError("amount", "amount must be positive", ErrCodeInvalidAmount)
		gomega.Expect(err.Error()).To(gomega.Equal("amount must be positive"))
		gomega.Expect(IsValidation(err)).To(gomega.BeTrue())
	})

	ginkgo.It("hides the cause from the response body", func() {
		status, body := NewInternalError("failed to save", errors.New("pq: connection refused")).ToHTTPResponse()
		gomega.Expect(status).To(gomega.Equal(http.StatusInternalServerError))

		raw, err := json.Marshal(body)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(string(raw)).To(gomega.ContainSubstring(`"code":"INTERNAL_ERROR"`))
		gomega.Expect(string(raw)).NotTo(gomega.ContainSubstring("connection refused"))
	})
})
