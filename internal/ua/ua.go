// internal/ua/ua.go
//
// User-Agent parsing helpers.
//
// This wrapper isolates the third-party `github.com/avct/uasurfer` API so
// the rest of the codebase never sees its enums or structs.  The preview
// server only needs the device class, which picks the default pixel ratio
// for a sprite when the request does not name one.
package ua

import (
	surfer "github.com/avct/uasurfer"
)

// Device classes reported in Info.Device.
const (
	Desktop = "Desktop"
	Mobile  = "Mobile"
	Tablet  = "Tablet"
	Other   = "Other"
)

// Info carries the UA attributes the preview server logs and uses.
//
// Example (Safari on iPhone):
//
//	Browser "BrowserSafari"
//	OS      "OSiOS"
//	Device  "Mobile"
//	IsBot   false
type Info struct {
	Browser string
	OS      string
	Device  string
	IsBot   bool

	mac bool
}

// Parse converts a raw header into an Info struct.
func Parse(raw string) Info {
	u := surfer.Parse(raw)

	info := Info{
		Browser: u.Browser.Name.String(),
		OS:      u.OS.Name.String(),
		IsBot:   u.IsBot(),
		mac:     u.OS.Name == surfer.OSMacOSX,
	}

	switch u.DeviceType {
	case surfer.DeviceComputer:
		info.Device = Desktop
	case surfer.DeviceTablet:
		info.Device = Tablet
	case surfer.DevicePhone, surfer.DeviceWearable:
		info.Device = Mobile
	default:
		info.Device = Other
	}
	return info
}

// PixelRatio is the device pixel ratio assumed for a client that did not
// send one.  Phones are rendered at 3x, tablets and Macs at 2x, the rest
// at 1x.
func (i Info) PixelRatio() float64 {
	switch {
	case i.Device == Mobile:
		return 3
	case i.Device == Tablet:
		return 2
	case i.Device == Desktop && i.mac:
		return 2
	default:
		return 1
	}
}
