package transport

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/foodlens/framelink/internal/bluetoothutil"
	"tinygo.org/x/bluetooth"
)

const defaultBluetoothScanDuration = 10 * time.Second

// ScanDevice is one advertiser seen during a scan.
type ScanDevice struct {
	Name              string `json:"name"`
	Address           string `json:"address"`
	RSSI              int    `json:"rssi"`
	HasGlassesService bool   `json:"has_glasses_service"`
}

// BluetoothScanner lists nearby BLE devices, glasses first.
type BluetoothScanner struct {
	scanDuration time.Duration
	mu           sync.Mutex
}

func NewBluetoothScanner(scanDuration time.Duration) *BluetoothScanner {
	if scanDuration <= 0 {
		scanDuration = defaultBluetoothScanDuration
	}
	return &BluetoothScanner{scanDuration: scanDuration}
}

func (s *BluetoothScanner) Scan(ctx context.Context, adapterID string) ([]ScanDevice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	adapter, err := bluetoothutil.OpenAdapter(adapterID)
	if err != nil {
		return nil, err
	}
	if err := bluetoothutil.StopScan(adapter); err != nil {
		return nil, fmt.Errorf("reset bluetooth scan state: %w", err)
	}

	scanCtx := ctx
	if _, hasDeadline := scanCtx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(scanCtx, s.scanDuration)
		defer cancel()
	}

	var (
		mu      sync.Mutex
		devices = make(map[string]ScanDevice)
	)
	scanErrCh := make(chan error, 1)
	go func() {
		scanErrCh <- bluetoothutil.Scan(adapter, func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
			entry := ScanDevice{
				Name:              strings.TrimSpace(result.LocalName()),
				Address:           strings.ToUpper(strings.TrimSpace(result.Address.String())),
				RSSI:              int(result.RSSI),
				HasGlassesService: bluetoothutil.IsGlassesAdvertisement(result),
			}
			if entry.Address == "" {
				return
			}

			mu.Lock()
			defer mu.Unlock()
			devices[entry.Address] = mergeScanDevice(devices[entry.Address], entry)
		})
	}()

	if err := awaitScanCompletion(scanCtx, adapter, scanErrCh); err != nil {
		return nil, err
	}

	mu.Lock()
	result := make([]ScanDevice, 0, len(devices))
	for _, device := range devices {
		result = append(result, device)
	}
	mu.Unlock()

	SortScanDevices(result)
	return result, nil
}

func awaitScanCompletion(ctx context.Context, adapter *bluetooth.Adapter, scanErrCh <-chan error) error {
	select {
	case err := <-scanErrCh:
		if err = bluetoothutil.NormalizeScanError(err); err != nil {
			return fmt.Errorf("scan bluetooth devices: %w", err)
		}
		return nil
	case <-ctx.Done():
		if err := bluetoothutil.StopScan(adapter); err != nil {
			return fmt.Errorf("stop bluetooth scan: %w", err)
		}
		if err := bluetoothutil.NormalizeScanError(<-scanErrCh); err != nil {
			return fmt.Errorf("scan bluetooth devices: %w", err)
		}
		// The scan window elapsing is the normal way a scan ends.
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil
		}
		return ctx.Err()
	}
}

func mergeScanDevice(existing, next ScanDevice) ScanDevice {
	if existing.Address == "" {
		return next
	}
	merged := existing
	if len(next.Name) > len(merged.Name) {
		merged.Name = next.Name
	}
	if next.RSSI > merged.RSSI {
		merged.RSSI = next.RSSI
	}
	merged.HasGlassesService = merged.HasGlassesService || next.HasGlassesService

	return merged
}

// SortScanDevices orders glasses first, then by signal strength, name and address.
func SortScanDevices(devices []ScanDevice) {
	sort.Slice(devices, func(i, j int) bool {
		if devices[i].HasGlassesService != devices[j].HasGlassesService {
			return devices[i].HasGlassesService
		}
		if devices[i].RSSI != devices[j].RSSI {
			return devices[i].RSSI > devices[j].RSSI
		}
		leftName := strings.ToLower(devices[i].Name)
		rightName := strings.ToLower(devices[j].Name)
		if leftName != rightName {
			return leftName < rightName
		}
		return devices[i].Address < devices[j].Address
	})
}
