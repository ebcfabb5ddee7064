package ws

import "testing"

func header(values map[string]string) HeaderLookup {
	return func(name string) string { return values[name] }
}

func TestUpgradeSucceedsWithValidHeaders(t *testing.T) {
	resp, err := Upgrade(header(map[string]string{
		"Connection":            "Upgrade",
		"Upgrade":               "websocket",
		"Sec-WebSocket-Version": "13",
		"Sec-WebSocket-Key":     "dGhlIHNhbXBsZSBub25jZQ==",
	}))
	if err != nil {
		t.Fatalf("Upgrade() error = %v", err)
	}
	// RFC 6455 §1.3 worked example.
	want := "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
	if resp["Sec-WebSocket-Accept"] != want {
		t.Fatalf("Sec-WebSocket-Accept = %q, want %q", resp["Sec-WebSocket-Accept"], want)
	}
}

func TestUpgradeRejectsMissingKey(t *testing.T) {
	_, err := Upgrade(header(map[string]string{
		"Connection":            "Upgrade",
		"Upgrade":               "websocket",
		"Sec-WebSocket-Version": "13",
	}))
	if err == nil {
		t.Fatal("Upgrade() error = nil, want error for missing key")
	}
}

func TestUpgradeRejectsWrongVersion(t *testing.T) {
	_, err := Upgrade(header(map[string]string{
		"Connection":            "Upgrade",
		"Upgrade":               "websocket",
		"Sec-WebSocket-Version": "8",
		"Sec-WebSocket-Key":     "dGhlIHNhbXBsZSBub25jZQ==",
	}))
	if err == nil {
		t.Fatal("Upgrade() error = nil, want error for unsupported version")
	}
}

func TestUpgradeRejectsNonWebSocketHealthcheck(t *testing.T) {
	_, err := Upgrade(header(map[string]string{}))
	if err == nil {
		t.Fatal("Upgrade() error = nil, want error for plain HTTP request")
	}
}
