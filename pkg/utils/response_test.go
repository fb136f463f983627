package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRespondError(t *testing.T) {
	resp := httptest.NewRecorder()
	RespondError(resp, nil, http.StatusConflict, "a turn is already in flight")

	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, "application/json; charset=utf-8", resp.Header().Get("Content-Type"))

	var body ErrorBody
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "a turn is already in flight", body.Error)
}

func TestRespondJSONLogsEncodeFailure(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	resp := httptest.NewRecorder()

	RespondJSON(resp, zap.New(core), http.StatusOK, map[string]any{"bad": make(chan int)})

	assert.Equal(t, http.StatusOK, resp.Code)
	entries := logs.FilterMessage("encode response").All()
	require.Len(t, entries, 1)
	assert.EqualValues(t, http.StatusOK, entries[0].ContextMap()["status"])
}
