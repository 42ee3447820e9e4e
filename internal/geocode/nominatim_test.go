package geocode_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/mautops/dispatch-gin/internal/config"
	"github.com/mautops/dispatch-gin/internal/geocode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *geocode.Client {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return geocode.NewClient(config.GeocoderConfig{
		BaseURL:      server.URL,
		UserAgent:    "dispatch-test",
		CountryCodes: "ru",
		Language:     "ru",
	})
}

// TestGeocode_FirstResult 测试取第一个结果
func TestGeocode_FirstResult(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Тверская 1", r.URL.Query().Get("q"))
		assert.Equal(t, "ru", r.URL.Query().Get("countrycodes"))
		assert.Equal(t, "ru", r.URL.Query().Get("accept-language"))
		assert.Equal(t, "dispatch-test", r.Header.Get("User-Agent"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"place_id": 1, "lat": "55.7575", "lon": "37.6136", "display_name": "Тверская улица, 1, Москва"},
			{"place_id": 2, "lat": "59.9", "lon": "30.3", "display_name": "other"}
		]`))
	})

	result, err := client.Geocode(context.Background(), "Тверская 1")
	require.NoError(t, err)
	assert.Equal(t, 55.7575, result.Point.Latitude)
	assert.Equal(t, 37.6136, result.Point.Longitude)
	assert.Equal(t, "Тверская улица, 1, Москва", result.DisplayName)
}

// TestGeocode_NotFound 测试地址无法解析
func TestGeocode_NotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	_, err := client.Geocode(context.Background(), "nowhere")
	assert.True(t, errors.Is(err, geocode.ErrAddressNotFound))
}

// TestGeocode_ServerError 测试服务端错误
func TestGeocode_ServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.Geocode(context.Background(), "Тверская 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

// TestSuggest_FormatsAddresses 测试联想结果格式化
func TestSuggest_FormatsAddresses(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("addressdetails"))
		_, _ = w.Write([]byte(`[
			{"place_id": 10, "lat": "55.75", "lon": "37.61", "display_name": "1, Тверская, Москва",
			 "address": {"city": "Москва", "road": "Тверская улица", "house_number": "1"}},
			{"place_id": 11, "lat": "55.70", "lon": "37.50", "display_name": "Парк Горького, Москва"},
			{"place_id": 12, "lat": "bad", "lon": "37.50", "display_name": "broken"}
		]`))
	})

	suggestions, err := client.Suggest(context.Background(), "Тверская")
	require.NoError(t, err)
	require.Len(t, suggestions, 2)
	assert.Equal(t, "Москва, Тверская улица, 1", suggestions[0].Address)
	assert.Equal(t, int64(10), suggestions[0].PlaceID)
	assert.Equal(t, "Парк Горького", suggestions[1].Address)
}

// TestSuggest_ShortQuery 测试短查询不请求服务
func TestSuggest_ShortQuery(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`[]`))
	})

	suggestions, err := client.Suggest(context.Background(), "Тв")
	require.NoError(t, err)
	assert.Empty(t, suggestions)
	assert.Equal(t, int32(0), calls.Load())
}

// TestFormatAddress 测试短地址格式化
func TestFormatAddress(t *testing.T) {
	assert.Equal(t, "Казань, Баумана", geocode.FormatAddress(map[string]string{"town": "Казань", "road": "Баумана"}, ""))
	assert.Equal(t, "Село", geocode.FormatAddress(map[string]string{"village": "Село"}, "ignored"))
	assert.Equal(t, "Красная площадь", geocode.FormatAddress(nil, "Красная площадь, Москва"))
	assert.Equal(t, "", geocode.FormatAddress(nil, ""))
}
