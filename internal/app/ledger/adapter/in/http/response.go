package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	identity "github.com/JoeShih716/go-stmt-ledger/internal/app/identity/domain"
	"github.com/JoeShih716/go-stmt-ledger/internal/app/ledger/domain"
	"github.com/JoeShih716/go-stmt-ledger/pkg/logging"
)

// errorResponse 錯誤回應格式
type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.L().Warn("encode response failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Status: "error", Message: message})
}

// statusFor 將領域錯誤轉成 HTTP 狀態碼與對外訊息
// 無法辨識的錯誤一律 500，不外洩內部細節
func statusFor(err error) (int, string) {
	switch {
	case domain.IsValidation(err),
		errors.Is(err, domain.ErrInsufficientBalance),
		identity.IsValidation(err):
		return http.StatusBadRequest, rootMessage(err)
	case errors.Is(err, identity.ErrInvalidCredentials),
		errors.Is(err, identity.ErrUnauthenticated):
		return http.StatusUnauthorized, rootMessage(err)
	case errors.Is(err, domain.ErrStatementNotFound),
		errors.Is(err, identity.ErrUserNotFound):
		return http.StatusNotFound, rootMessage(err)
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// rootMessage 取最內層錯誤訊息，避免帶出包裝時加上的帳戶 ID
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}
