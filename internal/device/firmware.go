package device

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// FirmwareQueryScript prints the firmware version string of the glasses.
const FirmwareQueryScript = "print(frame.FIRMWARE_VERSION)"

// NormalizeFirmwareVersion turns device version strings such as "v25.080.0838"
// into canonical semver ("v25.80.838"). Missing minor/patch parts are allowed.
func NormalizeFirmwareVersion(raw string) (string, bool) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "v")
	if trimmed == "" {
		return "", false
	}

	parts := strings.Split(trimmed, ".")
	if len(parts) > 3 {
		return "", false
	}
	for i, part := range parts {
		if part == "" {
			return "", false
		}
		for _, r := range part {
			if r < '0' || r > '9' {
				return "", false
			}
		}
		part = strings.TrimLeft(part, "0")
		if part == "" {
			part = "0"
		}
		parts[i] = part
	}

	version := "v" + strings.Join(parts, ".")
	if !semver.IsValid(version) {
		return "", false
	}

	return semver.Canonical(version), true
}

// CheckFirmware fails with ErrFirmwareTooOld when version sorts before minimum.
// An empty minimum disables the check.
func CheckFirmware(version, minimum string) error {
	if strings.TrimSpace(minimum) == "" {
		return nil
	}
	want, ok := NormalizeFirmwareVersion(minimum)
	if !ok {
		return fmt.Errorf("invalid minimum firmware version %q", minimum)
	}
	got, ok := NormalizeFirmwareVersion(version)
	if !ok {
		return fmt.Errorf("unrecognized firmware version %q", version)
	}
	if semver.Compare(got, want) < 0 {
		return fmt.Errorf("%w: %s < %s", ErrFirmwareTooOld, got, want)
	}

	return nil
}
