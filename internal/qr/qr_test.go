package qr

import (
	"strings"
	"testing"
)

func TestDataURI(t *testing.T) {
	uri, err := DataURI("2@abcdef0123456789,pairing-ref", 256)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(uri, "data:image/png;base64,") {
		t.Errorf("uri prefix = %q, want data:image/png;base64,", uri[:min(len(uri), 30)])
	}
	if len(uri) < 100 {
		t.Errorf("uri suspiciously short: %d bytes", len(uri))
	}
}

func TestDataURIEmptyCode(t *testing.T) {
	if _, err := DataURI("", 256); err == nil {
		t.Error("DataURI(\"\") should fail")
	}
}

func TestDataURIDefaultSize(t *testing.T) {
	uri, err := DataURI("code", 0)
	if err != nil {
		t.Fatal(err)
	}
	if uri == "" {
		t.Error("empty uri with default size")
	}
}
