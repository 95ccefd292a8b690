package mediaclient

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyxmakerx/atlas/internal/entity"
	"github.com/keyxmakerx/atlas/internal/mediaapi"
)

var muscle42 = entity.Ref{Type: entity.Muscle, ID: "42"}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, srv.Client())
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestList_DecodesEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/media/muscle/42", r.URL.Path)
		writeJSON(w, http.StatusOK, mediaapi.OK([]mediaapi.Item{
			{File: mediaapi.File{ID: "a"}, DisplayOrder: 0},
			{File: mediaapi.File{ID: "b"}, DisplayOrder: 1},
		}))
	})

	items, err := c.List(t.Context(), muscle42)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "b", items[1].ID)
}

func TestApplicationFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": "quota exceeded"})
	})

	_, err := c.List(t.Context(), muscle42)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "quota exceeded", apiErr.Message)
	assert.Equal(t, http.StatusOK, apiErr.Status)
}

func TestErrorStatusWithEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusConflict, map[string]any{"success": false, "error": "media is already linked to this entity"})
	})

	_, err := c.Link(t.Context(), muscle42, "f1", "")
	assert.True(t, IsStatus(err, http.StatusConflict))
	assert.EqualError(t, err, "media is already linked to this entity")
}

func TestErrorStatusWithoutEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "<html>bad gateway</html>")
	})

	err := c.Reorder(t.Context(), muscle42, []string{"a"})
	var tErr *TransportError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, http.StatusBadGateway, tErr.Status)
	assert.Contains(t, err.Error(), "bad gateway")
}

func TestNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	c, err := New(srv.URL, nil)
	require.NoError(t, err)
	srv.Close()

	_, err = c.List(t.Context(), muscle42)
	var tErr *TransportError
	require.ErrorAs(t, err, &tErr)
	assert.Zero(t, tErr.Status)
	assert.NotNil(t, errors.Unwrap(err))
}

func TestUpload_SendsMultipart(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "muscle", r.FormValue(mediaapi.FieldEntityType))
		assert.Equal(t, "42", r.FormValue(mediaapi.FieldEntityID))
		assert.Equal(t, "lateral", r.FormValue(mediaapi.FieldDescription))
		f, hdr, err := r.FormFile(mediaapi.FieldFile)
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "deltoid.png", hdr.Filename)
		assert.Equal(t, "bytes", string(data))

		writeJSON(w, http.StatusCreated, mediaapi.OK(mediaapi.Item{File: mediaapi.File{ID: "new", FileName: hdr.Filename}}))
	})

	item, err := c.Upload(t.Context(), muscle42, "deltoid.png", strings.NewReader("bytes"), "lateral")
	require.NoError(t, err)
	assert.Equal(t, "new", item.ID)
}

func TestDelete_SendsScopeInBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/media/f1", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{"entityType": "muscle", "entityId": "42"}, body)
		writeJSON(w, http.StatusOK, mediaapi.OK(mediaapi.Ack{Status: "deleted"}))
	})

	require.NoError(t, c.Delete(t.Context(), muscle42, "f1"))
}

func TestSearch_EncodesQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "deltoid view", q.Get("search"))
		assert.Equal(t, "image", q.Get("file_type"))
		assert.Equal(t, "muscle", q.Get("exclude_entity_type"))
		assert.Equal(t, "42", q.Get("exclude_entity_id"))
		assert.Equal(t, "5", q.Get("limit"))
		writeJSON(w, http.StatusOK, mediaapi.OK([]mediaapi.File{}))
	})

	files, err := c.Search(t.Context(), mediaapi.SearchParams{
		Search:            "deltoid view",
		FileType:          mediaapi.FileTypeImage,
		ExcludeEntityType: "muscle",
		ExcludeEntityID:   "42",
		Limit:             5,
	})
	require.NoError(t, err)
	assert.NotNil(t, files)
	assert.Empty(t, files)
}

func TestBulk_PartialFailureIsNotAnError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/refresh-links", r.URL.Path)
		var req mediaapi.RefreshLinksRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Len(t, req.MediaItems, 2)
		writeJSON(w, http.StatusOK, mediaapi.NewBulkResponse([]mediaapi.ItemResult{
			{ID: "a", Success: true, FileURL: "https://drive.test/a"},
			{ID: "b", Error: "no preview available"},
		}))
	})

	resp, err := c.RefreshLinks(t.Context(), muscle42, []mediaapi.RefreshLinkItem{
		{ID: "a", PublicURL: "https://drive.test/a"},
		{ID: "b", PublicURL: "https://drive.test/b"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Succeeded)
	assert.Equal(t, 1, resp.Failed)
}

func TestNew_RejectsMissingHost(t *testing.T) {
	_, err := New("http://", nil)
	assert.Error(t, err)

	c, err := New("localhost:8080/", nil)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", c.BaseURL())
}
