package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// TestNewSafeClientTimeout はタイムアウト設定が反映されることをテストする。
func TestNewSafeClientTimeout(t *testing.T) {
	guard := NewSSRFGuard()
	client := guard.NewSafeClient(5 * time.Second)
	if client.Timeout != 5*time.Second {
		t.Errorf("expected timeout %v, got %v", 5*time.Second, client.Timeout)
	}
	if client.Transport == nil || client.Transport == http.DefaultTransport {
		t.Fatal("expected custom Transport")
	}
}

// TestNewSafeClientBlocksLoopback はループバック宛てのリクエストが拒否されることをテストする。
func TestNewSafeClientBlocksLoopback(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := NewSSRFGuard().NewSafeClient(5 * time.Second)
	if _, err := client.Get(ts.URL); err == nil {
		t.Fatal("expected error for loopback address request, got nil")
	}
}

func TestValidateURL_Allowed(t *testing.T) {
	guard := NewSSRFGuard()

	for _, u := range []string{
		"https://openrouter.ai/api/v1",
		"https://api.openai.com/v1",
		"http://llm.example.com/v1",
		"https://llm.example.com:443/v1",
		"https://8.8.8.8/v1",
	} {
		t.Run(u, func(t *testing.T) {
			if err := guard.ValidateURL(u); err != nil {
				t.Errorf("ValidateURL(%q) returned error: %v", u, err)
			}
		})
	}
}

func TestValidateURL_Rejected(t *testing.T) {
	guard := NewSSRFGuard()

	tests := []struct {
		name string
		url  string
	}{
		{"空", ""},
		{"スキームなし", "not-a-url"},
		{"ftp", "ftp://example.com/v1"},
		{"file", "file:///etc/passwd"},
		{"許可外ポート", "https://llm.example.com:8443/v1"},
		{"プライベートIP 10/8", "http://10.0.0.1/v1"},
		{"プライベートIP 172.16/12", "http://172.31.255.255/v1"},
		{"プライベートIP 192.168/16", "http://192.168.1.100/v1"},
		{"ループバック", "http://127.0.0.1/v1"},
		{"localhost", "http://localhost/v1"},
		{"localhostサブドメイン", "http://api.localhost/v1"},
		{"メタデータIP", "http://169.254.169.254/latest/meta-data/"},
		{"ゼロアドレス", "http://0.0.0.0/v1"},
		{"CGNAT", "http://100.64.0.1/v1"},
		{"IPv6ループバック", "http://[::1]/v1"},
		{"IPv4射影IPv6ループバック", "http://[::ffff:127.0.0.1]/v1"},
		{"IPv6ユニークローカル", "http://[fd00::1]/v1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := guard.ValidateURL(tt.url); err == nil {
				t.Errorf("ValidateURL(%q) should have returned error", tt.url)
			}
		})
	}
}

func TestSSRFGuardInterface(t *testing.T) {
	var _ SSRFGuardService = NewSSRFGuard()
}
