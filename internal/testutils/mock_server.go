package testutils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// MockRateServer serves exchange rate payloads keyed by base currency
type MockRateServer struct {
	server   *httptest.Server
	requests atomic.Int64

	mutex      sync.Mutex
	rates      map[string]map[string]float64
	statusCode int
	rawBody    string
	lastAPIKey string
}

// NewMockRateServer creates a server that knows USD rates
func NewMockRateServer() *MockRateServer {
	mock := &MockRateServer{
		rates:      map[string]map[string]float64{"USD": MockRates()},
		statusCode: http.StatusOK,
	}
	mock.server = httptest.NewServer(http.HandlerFunc(mock.handler))
	return mock
}

// URL returns the latest-rates endpoint
func (m *MockRateServer) URL() string {
	return m.server.URL + "/latest"
}

// Close shuts the server down
func (m *MockRateServer) Close() {
	m.server.Close()
}

// Requests returns how many requests were served
func (m *MockRateServer) Requests() int64 {
	return m.requests.Load()
}

// SetRates replaces the rates served for base
func (m *MockRateServer) SetRates(base string, rates map[string]float64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.rates[base] = rates
}

// SetResponse forces a status code and raw body for every request
func (m *MockRateServer) SetResponse(statusCode int, body string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.statusCode = statusCode
	m.rawBody = body
}

// LastAPIKey returns the apikey header of the last request
func (m *MockRateServer) LastAPIKey() string {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.lastAPIKey
}

func (m *MockRateServer) handler(w http.ResponseWriter, r *http.Request) {
	m.requests.Add(1)

	m.mutex.Lock()
	m.lastAPIKey = r.Header.Get("apikey")
	statusCode, rawBody := m.statusCode, m.rawBody
	base := strings.ToUpper(r.URL.Query().Get("base"))
	rates, found := m.rates[base]
	m.mutex.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if rawBody != "" || statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
		_, _ = w.Write([]byte(rawBody))
		return
	}

	if !found {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"success": false, "error": {"code": 201, "info": "invalid base currency"}}`))
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"base":    base,
		"rates":   rates,
	})
}

// MockReleaseServer serves a release feed document
type MockReleaseServer struct {
	server   *httptest.Server
	requests atomic.Int64

	mutex      sync.Mutex
	statusCode int
	body       string
	headers    map[string]string
}

// NewMockReleaseServer creates a feed that answers with body and 200
func NewMockReleaseServer(body string) *MockReleaseServer {
	mock := &MockReleaseServer{statusCode: http.StatusOK, body: body, headers: map[string]string{}}
	mock.server = httptest.NewServer(http.HandlerFunc(mock.handler))
	return mock
}

// URL returns the feed endpoint
func (m *MockReleaseServer) URL() string {
	return m.server.URL + "/releases/latest"
}

// Close shuts the server down
func (m *MockReleaseServer) Close() {
	m.server.Close()
}

// Requests returns how many requests were served
func (m *MockReleaseServer) Requests() int64 {
	return m.requests.Load()
}

// SetResponse changes status, body and extra headers
func (m *MockReleaseServer) SetResponse(statusCode int, body string, headers map[string]string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.statusCode = statusCode
	m.body = body
	m.headers = headers
}

func (m *MockReleaseServer) handler(w http.ResponseWriter, r *http.Request) {
	m.requests.Add(1)

	m.mutex.Lock()
	statusCode, body, headers := m.statusCode, m.body, m.headers
	m.mutex.Unlock()

	for key, value := range headers {
		w.Header().Set(key, value)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write([]byte(body))
}

// ReleaseJSON renders a GitHub-style release document
func ReleaseJSON(tag string, versionCode int, assetName, downloadURL string, size int64) string {
	body := "## Kharrency " + tag + "\n\n**Version Code:** " + strconv.Itoa(versionCode) +
		"\n\n### What's New:\n- Faster conversions\n- Offline history\n\n### Technical Details:\n- Built with CI\n"
	document := map[string]interface{}{
		"tag_name":     tag,
		"body":         body,
		"published_at": "2024-03-15T10:30:00Z",
		"assets": []map[string]interface{}{
			{"name": "checksums.txt", "browser_download_url": downloadURL + ".txt", "size": 64},
			{"name": assetName, "browser_download_url": downloadURL, "size": size},
		},
	}
	encoded, _ := json.Marshal(document)
	return string(encoded)
}
