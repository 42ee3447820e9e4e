// Package geocode 通过 Nominatim 将地址解析为坐标
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mautops/dispatch-gin/internal/config"
	"github.com/mautops/dispatch-gin/internal/geo"
)

// ErrAddressNotFound 地址无法解析
var ErrAddressNotFound = errors.New("address not found")

// MinQueryLength 地址联想的最短查询长度
const MinQueryLength = 3

// Result 一次地址解析结果
type Result struct {
	Point       geo.Point `json:"coordinates"`
	DisplayName string    `json:"displayName"`
}

// Suggestion 地址联想候选
type Suggestion struct {
	PlaceID     int64     `json:"placeId"`
	Address     string    `json:"address"` // 格式化后的短地址
	DisplayName string    `json:"displayName"`
	Point       geo.Point `json:"coordinates"`
}

// Geocoder 地址解析接口
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*Result, error)
	Suggest(ctx context.Context, query string) ([]Suggestion, error)
}

// place Nominatim search 接口返回的单个结果
type place struct {
	PlaceID     int64             `json:"place_id"`
	Lat         string            `json:"lat"`
	Lon         string            `json:"lon"`
	DisplayName string            `json:"display_name"`
	Address     map[string]string `json:"address"`
}

func (p place) point() (geo.Point, error) {
	lat, err := strconv.ParseFloat(p.Lat, 64)
	if err != nil {
		return geo.Point{}, fmt.Errorf("invalid latitude %q: %w", p.Lat, err)
	}
	lon, err := strconv.ParseFloat(p.Lon, 64)
	if err != nil {
		return geo.Point{}, fmt.Errorf("invalid longitude %q: %w", p.Lon, err)
	}
	return geo.Point{Latitude: lat, Longitude: lon}, nil
}

// Client Nominatim 客户端
type Client struct {
	baseURL      string
	userAgent    string
	countryCodes string
	language     string
	httpClient   *http.Client
}

// NewClient 创建 Nominatim 客户端
func NewClient(cfg config.GeocoderConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:    cfg.UserAgent,
		countryCodes: cfg.CountryCodes,
		language:     cfg.Language,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

// Geocode 解析地址,取第一个结果
func (c *Client) Geocode(ctx context.Context, address string) (*Result, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, ErrAddressNotFound
	}

	places, err := c.search(ctx, address, false)
	if err != nil {
		return nil, err
	}
	if len(places) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrAddressNotFound, address)
	}

	point, err := places[0].point()
	if err != nil {
		return nil, err
	}
	return &Result{Point: point, DisplayName: places[0].DisplayName}, nil
}

// Suggest 地址联想,查询过短时返回空列表
func (c *Client) Suggest(ctx context.Context, query string) ([]Suggestion, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < MinQueryLength {
		return []Suggestion{}, nil
	}

	places, err := c.search(ctx, query, true)
	if err != nil {
		return nil, err
	}

	suggestions := make([]Suggestion, 0, len(places))
	for _, p := range places {
		point, err := p.point()
		if err != nil {
			continue
		}
		suggestions = append(suggestions, Suggestion{
			PlaceID:     p.PlaceID,
			Address:     FormatAddress(p.Address, p.DisplayName),
			DisplayName: p.DisplayName,
			Point:       point,
		})
	}
	return suggestions, nil
}

func (c *Client) search(ctx context.Context, query string, details bool) ([]place, error) {
	params := url.Values{}
	params.Set("format", "json")
	params.Set("q", query)
	if c.countryCodes != "" {
		params.Set("countrycodes", c.countryCodes)
	}
	if c.language != "" {
		params.Set("accept-language", c.language)
	}
	if details {
		params.Set("addressdetails", "1")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query geocoder: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("geocoder returned status %d", resp.StatusCode)
	}

	var places []place
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return nil, fmt.Errorf("failed to decode geocoder response: %w", err)
	}
	return places, nil
}

// FormatAddress 生成短地址: 城市, 街道, 门牌号;没有结构化地址时取完整名称的第一段
func FormatAddress(address map[string]string, displayName string) string {
	if len(address) > 0 {
		parts := make([]string, 0, 3)
		for _, key := range []string{"city", "town", "village"} {
			if v := address[key]; v != "" {
				parts = append(parts, v)
				break
			}
		}
		if v := address["road"]; v != "" {
			parts = append(parts, v)
		}
		if v := address["house_number"]; v != "" {
			parts = append(parts, v)
		}
		return strings.Join(parts, ", ")
	}

	if displayName != "" {
		return strings.TrimSpace(strings.Split(displayName, ",")[0])
	}
	return ""
}
