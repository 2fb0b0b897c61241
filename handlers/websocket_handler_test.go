package handlers

import "testing"

func TestOriginAllowed(t *testing.T) {
	const allowedHost = "app.example.com"

	tests := []struct {
		name   string
		origin string
		want   bool
	}{
		{"no origin header", "", true},
		{"configured host", "https://app.example.com", true},
		{"configured host over http", "http://app.example.com", true},
		{"case-insensitive host", "https://App.Example.COM", true},
		{"foreign host", "https://evil.example.net", false},
		{"subdomain of configured host", "https://app.example.com.evil.net", false},
		{"configured host with port", "https://app.example.com:8443", false},
		{"schemeless origin", "app.example.com", false},
		{"null origin", "null", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := originAllowed(tt.origin, allowedHost); got != tt.want {
				t.Errorf("originAllowed(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}
