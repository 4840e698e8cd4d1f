package relay

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"FMEdge/errs"
	"FMEdge/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func upstream(t *testing.T, fn http.HandlerFunc) (*httptest.Server, *model.StreamLocation) {
	t.Helper()
	srv := httptest.NewServer(fn)
	t.Cleanup(srv.Close)
	return srv, &model.StreamLocation{URL: srv.URL + "/audio.mp3", Provider: model.ProviderIA}
}

func TestServeForwardsRangeAndFiltersHeaders(t *testing.T) {
	var gotRange, gotReferer string
	_, loc := upstream(t, func(w http.ResponseWriter, r *http.Request) {
		gotRange = r.Header.Get("Range")
		gotReferer = r.Header.Get("Referer")
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Header().Set("Content-Range", "bytes 0-3/10")
		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("Set-Cookie", "session=secret")
		w.Header().Set("X-Upstream-Node", "edge-7")
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write([]byte("abcd"))
	})
	loc.Headers = map[string]string{"Referer": "https://music.163.com/"}

	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	req.Header.Set("Range", "bytes=0-3")
	rec := httptest.NewRecorder()

	require.NoError(t, New(nil).Serve(rec, req, loc))
	assert.Equal(t, "bytes=0-3", gotRange)
	assert.Equal(t, "https://music.163.com/", gotReferer)
	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "abcd", rec.Body.String())
	assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "bytes 0-3/10", rec.Header().Get("Content-Range"))
	assert.Equal(t, DefaultCacheControl, rec.Header().Get("Cache-Control"))
	assert.Empty(t, rec.Header().Get("Set-Cookie"))
	assert.Empty(t, rec.Header().Get("X-Upstream-Node"))
}

func TestServeKeepsUpstreamCacheControl(t *testing.T) {
	_, loc := upstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "private, max-age=60")
		_, _ = w.Write([]byte("x"))
	})
	rec := httptest.NewRecorder()
	require.NoError(t, New(nil).Serve(rec, httptest.NewRequest(http.MethodGet, "/stream", nil), loc))
	assert.Equal(t, "private, max-age=60", rec.Header().Get("Cache-Control"))
}

func TestServeHead(t *testing.T) {
	var method string
	_, loc := upstream(t, func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		w.Header().Set("Content-Length", "1024")
		w.Header().Set("Content-Type", "audio/ogg")
	})
	rec := httptest.NewRecorder()
	require.NoError(t, New(nil).Serve(rec, httptest.NewRequest(http.MethodHead, "/stream", nil), loc))
	assert.Equal(t, http.MethodHead, method)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/ogg", rec.Header().Get("Content-Type"))
	assert.Zero(t, rec.Body.Len())
}

func TestServeUpstreamErrors(t *testing.T) {
	_, loc := upstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	err := New(nil).Serve(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/stream", nil), loc)
	assert.Equal(t, errs.CodeRelayFailure, errs.CodeOf(err))
	assert.Equal(t, http.StatusBadGateway, errs.HTTPStatus(err))

	_, loc = upstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	err = New(nil).Serve(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/stream", nil), loc)
	assert.Equal(t, errs.CodeNotFound, errs.CodeOf(err))
}

func TestOpenTransportFailure(t *testing.T) {
	srv, loc := upstream(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()

	_, err := New(nil).Open(t.Context(), http.MethodGet, loc, "")
	require.Error(t, err)
	assert.Equal(t, errs.CodeRelayFailure, errs.CodeOf(err))
}

func TestServeUpstreamHeaderTimeout(t *testing.T) {
	_, loc := upstream(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})

	start := time.Now()
	err := New(NewClient(50*time.Millisecond)).Serve(httptest.NewRecorder(),
		httptest.NewRequest(http.MethodGet, "/stream", nil), loc)
	require.Error(t, err)
	assert.Equal(t, errs.CodeRelayFailure, errs.CodeOf(err))
	assert.Equal(t, http.StatusBadGateway, errs.HTTPStatus(err))
	assert.Less(t, time.Since(start), time.Second)
}

func TestServeSlowBodyIsNotCutOff(t *testing.T) {
	_, loc := upstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		time.Sleep(150 * time.Millisecond)
		_, _ = w.Write([]byte("late"))
	})

	rec := httptest.NewRecorder()
	require.NoError(t, New(NewClient(50*time.Millisecond)).Serve(rec,
		httptest.NewRequest(http.MethodGet, "/stream", nil), loc))
	assert.Equal(t, "late", rec.Body.String())
}

func TestNewClientDefaultsHeaderTimeout(t *testing.T) {
	tr, ok := NewClient(0).Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, DefaultHeaderTimeout, tr.ResponseHeaderTimeout)
}

func TestOpenEmptyLocation(t *testing.T) {
	_, err := New(nil).Open(t.Context(), http.MethodGet, &model.StreamLocation{}, "")
	assert.Equal(t, errs.CodeNotFound, errs.CodeOf(err))
}

func TestOpenReturnsBody(t *testing.T) {
	_, loc := upstream(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("payload"))
	})
	up, err := New(nil).Open(t.Context(), http.MethodGet, loc, "")
	require.NoError(t, err)
	defer up.Close()
	body, err := io.ReadAll(up.Body)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(body))
}

func TestFilterHeaders(t *testing.T) {
	src := http.Header{}
	src.Set("ETag", `"abc"`)
	src.Set("Server", "nginx")
	out := FilterHeaders(src)
	assert.Equal(t, `"abc"`, out.Get("ETag"))
	assert.Empty(t, out.Get("Server"))
	assert.Equal(t, DefaultCacheControl, out.Get("Cache-Control"))
}
