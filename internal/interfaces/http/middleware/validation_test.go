package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/kost/backend/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type paymentBody struct {
	Method string `json:"method" binding:"required,oneof=cash transfer ewallet"`
	Date   string `json:"date" binding:"omitempty,datetime=2006-01-02"`
}

func bindPayment(body string) dto.Response {
	SetupValidator()
	router := gin.New()
	router.Use(RequestID())
	router.POST("/pay", func(c *gin.Context) {
		var req paymentBody
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleValidationError(c, err)
			return
		}
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/pay", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(RequestIDHeader, "req-val")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp dto.Response
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return resp
}

func TestHandleValidationError_FieldDetails(t *testing.T) {
	resp := bindPayment(`{"method":"cheque","date":"01/02/2024"}`)

	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
	assert.Equal(t, "req-val", resp.Error.RequestID)

	byField := map[string]string{}
	for _, d := range resp.Error.Details {
		byField[d.Field] = d.Message
	}
	assert.Equal(t, "Must be one of: cash transfer ewallet", byField["method"])
	assert.Equal(t, "Must be a date formatted 2006-01-02", byField["date"])
}

func TestHandleValidationError_MissingField(t *testing.T) {
	resp := bindPayment(`{}`)

	require.NotNil(t, resp.Error)
	require.Len(t, resp.Error.Details, 1)
	assert.Equal(t, "method", resp.Error.Details[0].Field)
	assert.Equal(t, "This field is required", resp.Error.Details[0].Message)
}

func TestHandleValidationError_MalformedJSON(t *testing.T) {
	resp := bindPayment(`{"method":`)

	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeInvalidJSON, resp.Error.Code)
	assert.Empty(t, resp.Error.Details)
}
