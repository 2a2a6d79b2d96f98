package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/echo-commerce-backend/pkg/errors"
)

type itemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"min=1,max=999"`
}

func jsonRequest(body string) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
}

func TestDecodeJSONBody(t *testing.T) {
	var req itemRequest
	require.NoError(t, DecodeJSONBody(jsonRequest(`{"product_id":"`+uuid.NewString()+`","quantity":2}`), &req))
	assert.Equal(t, 2, req.Quantity)

	err := DecodeJSONBody(jsonRequest(`{"product_id":"nope","quantity":0}`), &itemRequest{})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	details, ok := pkgerrors.As(err).Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "must be a valid uuid", details["product_id"])
	assert.Equal(t, "must be at least 1", details["quantity"])

	for name, body := range map[string]string{
		"unknown field": `{"product_id":"` + uuid.NewString() + `","quantity":1,"extra":true}`,
		"two objects":   `{"quantity":1}{"quantity":2}`,
		"empty":         ``,
		"too large":     `{"product_id":"` + strings.Repeat("a", maxBodyBytes) + `"}`,
	} {
		t.Run(name, func(t *testing.T) {
			err := DecodeJSONBody(jsonRequest(body), &itemRequest{})
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
		})
	}
}

func TestDecodeOptionalJSONBody(t *testing.T) {
	var req struct {
		Reason *string `json:"reason"`
	}
	empty := httptest.NewRequest(http.MethodPost, "/", nil)
	require.NoError(t, DecodeOptionalJSONBody(empty, &req))
	assert.Nil(t, req.Reason)

	require.NoError(t, DecodeOptionalJSONBody(jsonRequest(`{"reason":"customer asked"}`), &req))
	assert.Equal(t, "customer asked", *req.Reason)
}

func TestParseUUIDParam(t *testing.T) {
	id := uuid.New()
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("orderID", id.String())
	rctx.URLParams.Add("bad", "xyz")
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))

	got, err := ParseUUIDParam(r, "orderID")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = ParseUUIDParam(r, "bad")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = ParseUUIDParam(r, "missing")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestParseOptionalUUID(t *testing.T) {
	blank := "  "
	got, err := ParseOptionalUUID(&blank, "conversation_id")
	require.NoError(t, err)
	assert.Nil(t, got)

	raw := " " + uuid.NewString() + " "
	got, err = ParseOptionalUUID(&raw, "conversation_id")
	require.NoError(t, err)
	assert.Equal(t, strings.TrimSpace(raw), got.String())

	bad := "x"
	_, err = ParseOptionalUUID(&bad, "conversation_id")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestParseQueryInt(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?limit=10&bad=x&big=500", nil)

	v, err := ParseQueryInt(r, "limit", 25, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 10, v)

	v, err = ParseQueryInt(r, "absent", 25, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 25, v)

	_, err = ParseQueryInt(r, "bad", 25, 1, 100)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = ParseQueryInt(r, "big", 25, 1, 100)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "hello", SanitizeString("  hello  ", 0))
	assert.Equal(t, "héll", SanitizeString("héllo", 4))
	assert.Equal(t, "ab", SanitizeString("ab c", 3))
}
