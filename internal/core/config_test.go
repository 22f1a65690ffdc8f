package core

import (
	"testing"
)

func TestConfigDatabaseURL(t *testing.T) {
	cfg := &Config{}
	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.Name = "testdb"
	cfg.Database.Username = "testuser"
	cfg.Database.Password = "testpassword"
	cfg.Database.SSLMode = "disable"

	url := cfg.DatabaseURL()
	expected := "host=localhost port=5432 dbname=testdb user=testuser password=testpassword sslmode=disable"
	if url != expected {
		t.Errorf("DatabaseURL() = %s, want %s", url, expected)
	}
}

func TestConfigBroadcastAddress(t *testing.T) {
	tests := []struct {
		name       string
		hostname   string
		externalIP string
		expected   string
	}{
		{name: "external ip wins", hostname: "0.0.0.0", externalIP: "203.0.113.7", expected: "203.0.113.7"},
		{name: "hostname fallback", hostname: "10.0.0.5", expected: "10.0.0.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Hostname: tt.hostname, ExternalIP: tt.externalIP}
			if addr := cfg.BroadcastAddress(); addr != tt.expected {
				t.Errorf("BroadcastAddress() = %s, want %s", addr, tt.expected)
			}
		})
	}
}
