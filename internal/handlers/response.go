package handlers

import (
  "errors"
  "net/http"

  "github.com/gin-gonic/gin"

  "github.com/yungbote/chatdesk-backend/internal/apierr"
)

// ErrorEnvelope keeps the error message a plain string so clients can always
// decode `error` directly; the machine-readable code rides alongside.
type ErrorEnvelope struct {
  Error string `json:"error"`
  Code  string `json:"code,omitempty"`
}

// RespondAPIError maps service errors onto HTTP statuses. Anything that is
// not an *apierr.Error is treated as internal and its detail is withheld.
func RespondAPIError(c *gin.Context, err error) {
  var apiErr *apierr.Error
  if errors.As(err, &apiErr) {
    msg := apiErr.Error()
    if apiErr.Status >= 500 && apiErr.Code == apierr.CodeInternal {
      msg = "internal error"
    }
    c.JSON(apiErr.Status, ErrorEnvelope{Error: msg, Code: apiErr.Code})
    return
  }
  c.JSON(http.StatusInternalServerError, ErrorEnvelope{Error: "internal error", Code: apierr.CodeInternal})
}

func RespondError(c *gin.Context, status int, code string, err error) {
  msg := "unknown error"
  if err != nil {
    msg = err.Error()
  }
  c.JSON(status, ErrorEnvelope{Error: msg, Code: code})
}

func RespondOK(c *gin.Context, payload any) {
  c.JSON(http.StatusOK, payload)
}
