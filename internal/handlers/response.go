package handlers

import (
  "errors"
  "net/http"
  "github.com/gin-gonic/gin"
  pkgerrors "github.com/attendlab/gatesight-backend/internal/pkg/errors"
)

type APIError struct {
  Message     string	`json:"message"`
  Code	      string	`json:"code,omitempty"`
}

type ErrorEnvelope struct {
  Error	      APIError	`json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
  msg := "unknown error"
  if err != nil {
    msg = err.Error()
  }
  c.JSON(status, ErrorEnvelope{
    Error: APIError{
      Message: msg,
      Code:    code,
    },
  })
}

func RespondOK(c *gin.Context, payload any) {
  c.JSON(http.StatusOK, payload)
}

// RespondServiceError maps the service-layer sentinels onto HTTP statuses so
// every handler classifies errors the same way.
func RespondServiceError(c *gin.Context, code string, err error) {
  switch {
  case errors.Is(err, pkgerrors.ErrNotFound):
    RespondError(c, http.StatusNotFound, code, err)
  case errors.Is(err, pkgerrors.ErrInvalidArgument):
    RespondError(c, http.StatusBadRequest, code, err)
  case errors.Is(err, pkgerrors.ErrConflict), errors.Is(err, pkgerrors.ErrStaleState):
    RespondError(c, http.StatusConflict, code, err)
  default:
    RespondError(c, http.StatusInternalServerError, code, err)
  }
}
