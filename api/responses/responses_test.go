package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/echo-commerce-backend/pkg/errors"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var env ErrorEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env.Error
}

func TestWriteSuccessStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteSuccessStatus(rec, http.StatusCreated, map[string]string{"order_number": "ORD-ABC-000001"})

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"order_number":"ORD-ABC-000001"}}`, rec.Body.String())
}

func TestWriteErrorExposesClientErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	rec.Header().Set(RequestIDHeader, "req-1")
	err := pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").
		WithDetails(map[string]string{"quantity": "must be at least 1"})

	WriteError(context.Background(), nil, rec, err)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, string(pkgerrors.CodeValidation), body.Code)
	assert.Equal(t, "quantity must be positive", body.Message)
	assert.Equal(t, map[string]any{"quantity": "must be at least 1"}, body.Details)
	assert.Equal(t, "req-1", body.RequestID)
}

func TestWriteErrorHidesServerFailures(t *testing.T) {
	cases := map[string]struct {
		err    error
		status int
		code   pkgerrors.Code
	}{
		"untyped": {
			err:    errors.New("pq: connection refused"),
			status: http.StatusInternalServerError,
			code:   pkgerrors.CodeInternal,
		},
		"provider": {
			err:    pkgerrors.Wrap(pkgerrors.CodePaymentNotStarted, errors.New("stripe: card_declined"), "stripe session failed"),
			status: http.StatusBadGateway,
			code:   pkgerrors.CodePaymentNotStarted,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(context.Background(), nil, rec, tc.err)

			require.Equal(t, tc.status, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, string(tc.code), body.Code)
			assert.Equal(t, pkgerrors.MetadataFor(tc.code).PublicMessage, body.Message)
			assert.Nil(t, body.Details)
		})
	}
}
