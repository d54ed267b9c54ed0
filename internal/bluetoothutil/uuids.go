package bluetoothutil

import (
	"fmt"
	"strings"

	"tinygo.org/x/bluetooth"
)

// The glasses expose a single UART-like service: the host writes Lua to TX
// and receives print output and data notifications on RX.
var (
	glassesServiceUUID = mustParseUUID("7a230001-5475-a6a4-654c-8431f6ad49c4")
	glassesTXUUID      = mustParseUUID("7a230002-5475-a6a4-654c-8431f6ad49c4")
	glassesRXUUID      = mustParseUUID("7a230003-5475-a6a4-654c-8431f6ad49c4")
)

func mustParseUUID(raw string) bluetooth.UUID {
	uuid, err := bluetooth.ParseUUID(strings.TrimSpace(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid bluetooth UUID %q: %v", raw, err))
	}

	return uuid
}

func GlassesServiceUUID() bluetooth.UUID {
	return glassesServiceUUID
}

func GlassesTXUUID() bluetooth.UUID {
	return glassesTXUUID
}

func GlassesRXUUID() bluetooth.UUID {
	return glassesRXUUID
}
