package ocrspace

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goopick/madstamp/internal/common"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(common.OCRConfig{
		APIKey:   "test-key",
		Endpoint: srv.URL,
		Timeout:  time.Second,
	}, nil)
}

func TestExtractTextParsesResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(8<<20))
		assert.Equal(t, "test-key", r.FormValue("apikey"))
		assert.Equal(t, "kor", r.FormValue("language"))
		assert.Contains(t, r.FormValue("base64Image"), "data:image/png;base64,")
		w.Write([]byte(`{"ParsedResults":[{"ParsedText":"김철수\n"}],"IsErroredOnProcessing":false}`))
	})

	res, err := c.ExtractText(context.Background(), []byte("fake-png"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "김철수", res.Text)
	assert.Equal(t, "traditional_korean", res.FontStyleGuess)
}

func TestExtractTextProviderError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"IsErroredOnProcessing":true,"ErrorMessage":["image too large"]}`))
	})

	_, err := c.ExtractText(context.Background(), []byte("x"), "image/png")
	require.Error(t, err)
	var se *common.ServiceError
	assert.ErrorAs(t, err, &se)
}

func TestExtractTextHTTPError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	})

	_, err := c.ExtractText(context.Background(), []byte("x"), "image/png")
	assert.Error(t, err)
}

func TestGuessStyle(t *testing.T) {
	assert.Equal(t, "traditional_korean", guessStyle("도장 주문"))
	assert.Equal(t, "modern_logo", guessStyle("ACME Corp"))
	assert.Equal(t, "", guessStyle(""))
}
