package bluetoothutil

import (
	"testing"

	"tinygo.org/x/bluetooth"
)

type advertisement struct {
	bluetooth.AdvertisementPayload
	name     string
	services []bluetooth.UUID
}

func (a advertisement) LocalName() string { return a.name }

func (a advertisement) HasServiceUUID(uuid bluetooth.UUID) bool {
	for _, s := range a.services {
		if s == uuid {
			return true
		}
	}
	return false
}

func TestIsGlassesAdvertisement(t *testing.T) {
	tests := []struct {
		name string
		ad   advertisement
		want bool
	}{
		{name: "service uuid", ad: advertisement{services: []bluetooth.UUID{GlassesServiceUUID()}}, want: true},
		{name: "name only", ad: advertisement{name: " Frame 4f "}, want: true},
		{name: "other uart device", ad: advertisement{name: "Heart Strap", services: []bluetooth.UUID{GlassesTXUUID()}}, want: false},
		{name: "anonymous", ad: advertisement{}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := bluetooth.ScanResult{AdvertisementPayload: tt.ad}
			if got := IsGlassesAdvertisement(result); got != tt.want {
				t.Fatalf("IsGlassesAdvertisement = %v, want %v", got, tt.want)
			}
		})
	}
}
