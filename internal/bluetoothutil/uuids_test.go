package bluetoothutil

import (
	"strings"
	"testing"
)

func TestGlassesUUIDsAreDefinedAndDistinct(t *testing.T) {
	service := GlassesServiceUUID()
	tx := GlassesTXUUID()
	rx := GlassesRXUUID()

	if service == tx || service == rx || tx == rx {
		t.Fatalf("glasses UUIDs must be distinct")
	}
	if got := strings.ToLower(service.String()); got != "7a230001-5475-a6a4-654c-8431f6ad49c4" {
		t.Fatalf("unexpected service UUID %s", got)
	}
}

func TestMustParseUUIDPanicsOnInvalidValue(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for invalid UUID")
		}
	}()
	_ = mustParseUUID("not-a-uuid")
}
