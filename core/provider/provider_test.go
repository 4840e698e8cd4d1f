package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"FMEdge/config"
	"FMEdge/errs"
	"FMEdge/model"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions(srv *httptest.Server) Options {
	return Options{
		BaseURL:       srv.URL,
		HTTPClient:    srv.Client(),
		MaxTries:      3,
		RetryInterval: time.Millisecond,
		RatePerSecond: 1000,
		Burst:         100,
	}
}

func serveJSON(t *testing.T, handler func(r *http.Request) (int, any)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status, body := handler(r)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if s, ok := body.(string); ok {
			_, _ = w.Write([]byte(s))
			return
		}
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPClientRetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := serveJSON(t, func(*http.Request) (int, any) {
		if calls.Add(1) < 3 {
			return http.StatusServiceUnavailable, `{}`
		}
		return http.StatusOK, map[string]string{"ok": "yes"}
	})

	c := newHTTPClient(model.ProviderGD, testOptions(srv).withDefaults("", time.Second))
	var out map[string]string
	require.NoError(t, c.getJSON(context.Background(), srv.URL, &out))
	assert.Equal(t, "yes", out["ok"])
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPClientGivesUpAfterMaxTries(t *testing.T) {
	var calls atomic.Int32
	srv := serveJSON(t, func(*http.Request) (int, any) {
		calls.Add(1)
		return http.StatusBadGateway, `{}`
	})

	c := newHTTPClient(model.ProviderGD, testOptions(srv).withDefaults("", time.Second))
	err := c.getJSON(context.Background(), srv.URL, &struct{}{})
	require.Error(t, err)
	assert.Equal(t, errs.CodeUpstreamFailure, errs.CodeOf(err))
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPClientDoesNotRetryPermanentErrors(t *testing.T) {
	var calls atomic.Int32
	srv := serveJSON(t, func(r *http.Request) (int, any) {
		calls.Add(1)
		if r.URL.Path == "/missing" {
			return http.StatusNotFound, `{}`
		}
		return http.StatusBadRequest, `{}`
	})
	c := newHTTPClient(model.ProviderIA, testOptions(srv).withDefaults("", time.Second))

	err := c.getJSON(context.Background(), srv.URL+"/missing", &struct{}{})
	assert.True(t, errs.Is(err, errs.CodeNotFound))
	assert.Equal(t, int32(1), calls.Load())

	err = c.getJSON(context.Background(), srv.URL+"/bad", &struct{}{})
	assert.True(t, errs.Is(err, errs.CodeUpstreamFailure))
	assert.Equal(t, int32(2), calls.Load())
}

func TestHTTPClientTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := newHTTPClient(model.ProviderAudius, testOptions(srv).withDefaults("", time.Second))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := c.getJSON(ctx, srv.URL, &struct{}{})
	assert.Equal(t, errs.CodeUpstreamTimeout, errs.CodeOf(err))
}

func TestHTTPClientMalformedBody(t *testing.T) {
	srv := serveJSON(t, func(*http.Request) (int, any) { return http.StatusOK, `not json` })
	c := newHTTPClient(model.ProviderGD, testOptions(srv).withDefaults("", time.Second))
	err := c.getJSON(context.Background(), srv.URL, &struct{}{})
	assert.Equal(t, errs.CodeUpstreamFailure, errs.CodeOf(err))
}

func TestFlexTypes(t *testing.T) {
	var v struct {
		A flexString  `json:"a"`
		B flexString  `json:"b"`
		C flexStrings `json:"c"`
		D flexStrings `json:"d"`
		E flexFloat   `json:"e"`
		F flexFloat   `json:"f"`
		G flexStrings `json:"g"`
	}
	raw := `{"a":123,"b":"x","c":"solo","d":["one",2," "],"e":"12.5","f":7,"g":null}`
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	assert.Equal(t, "123", v.A.String())
	assert.Equal(t, "x", v.B.String())
	assert.Equal(t, flexStrings{"solo"}, v.C)
	assert.Equal(t, flexStrings{"one", "2"}, v.D)
	assert.Equal(t, "one / 2", v.D.Join())
	assert.Equal(t, 12.5, float64(v.E))
	assert.Equal(t, 7.0, float64(v.F))
	assert.Empty(t, v.G.First())
}

func TestRegistrySelect(t *testing.T) {
	r := NewRegistry(NewGD(Options{}), NewKuwo(Options{}), NewArchive(Options{}))
	assert.Equal(t, []model.ProviderID{model.ProviderGD, model.ProviderKuwo, model.ProviderIA}, r.IDs())

	assert.Equal(t, []model.ProviderID{model.ProviderIA, model.ProviderGD}, r.Select("IA, bogus,gd,ia"))
	// audius 合法但未注册
	assert.Equal(t, r.IDs(), r.Select("audius"))
	assert.Equal(t, r.IDs(), r.Select(""))

	a, ok := r.Get(model.ProviderKuwo)
	require.True(t, ok)
	assert.Equal(t, model.ProviderKuwo, a.ID())
	_, ok = r.Get(model.ProviderNetease)
	assert.False(t, ok)
}

func TestDefaultRegistry(t *testing.T) {
	cfg := &config.Config{GDAPIURL: gdStudioAPI, AudiusAppName: "fmedge"}
	r := Default(cfg)
	assert.Equal(t, []model.ProviderID{model.ProviderGD, model.ProviderKuwo, model.ProviderIA, model.ProviderAudius}, r.IDs())

	cfg.JamendoClientID = "abc"
	cfg.NeteaseAPIURL = "http://netease.local"
	r = Default(cfg)
	assert.Equal(t, []model.ProviderID{
		model.ProviderGD, model.ProviderKuwo, model.ProviderJamendo,
		model.ProviderIA, model.ProviderAudius, model.ProviderNetease,
	}, r.IDs())
}

func TestAdapterTimeouts(t *testing.T) {
	assert.Equal(t, 5*time.Second, NewGD(Options{}).Timeout())
	assert.Equal(t, 4500*time.Millisecond, NewAudius(Options{}, "").Timeout())
	assert.Equal(t, 7*time.Second, NewArchive(Options{}).Timeout())
	assert.Equal(t, 7*time.Second, NewJamendo(Options{}, "id").Timeout())
	assert.Equal(t, 5*time.Second, NewNetease(Options{}).Timeout())
}
