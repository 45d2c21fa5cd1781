package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idkhub-com/reactive-agents/gateway/dialects"
	"github.com/idkhub-com/reactive-agents/types"
)

func TestMain(m *testing.M) {
	dialects.RegisterAll()
	m.Run()
}

func TestWriteErrorTypedError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, nil, types.NewError(types.ErrNotFound, "agent not found"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var envelope types.ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "agent not found", envelope.Error.Message)
	assert.Equal(t, string(types.ErrNotFound), envelope.Error.Code)
}

func TestWriteErrorUnknownErrorFoldsTo500(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, nil, errors.New("driver exploded: secret dsn"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret dsn")
}

func TestDecodeJSON(t *testing.T) {
	var out map[string]string

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":"b"}`))
	require.NoError(t, DecodeJSON(r, &out))
	assert.Equal(t, "b", out["a"])

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	err := DecodeJSON(r, &out)
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidRequest, err.(*types.Error).Code)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{broken"))
	assert.Error(t, DecodeJSON(r, &out))
}
