package protocol

import "strings"

// AdapterInfo identifies a USB serial bridge by vendor and product ID
type AdapterInfo struct {
	Vendor string
	Model  string
}

// usbVendor holds the known products of one USB vendor
type usbVendor struct {
	name     string
	products map[string]string
}

// adapterDatabase maps lowercase hex vendor IDs to the serial bridges they make
var adapterDatabase = map[string]usbVendor{
	"0403": {
		name: "FTDI",
		products: map[string]string{
			"6001": "FT232R",
			"6010": "FT2232",
			"6011": "FT4232",
			"6014": "FT232H",
			"6015": "FT231X",
		},
	},
	"067b": {
		name: "Prolific",
		products: map[string]string{
			"2303": "PL2303",
			"23a3": "PL2303GC",
		},
	},
	"10c4": {
		name: "Silicon Labs",
		products: map[string]string{
			"ea60": "CP210x",
			"ea70": "CP2105",
		},
	},
	"1a86": {
		name: "WCH",
		products: map[string]string{
			"7523": "CH340",
			"5523": "CH341",
			"55d4": "CH9102",
		},
	},
	"2341": {
		name: "Arduino",
		products: map[string]string{
			"0042": "Mega 2560 R3",
			"0043": "Uno R3",
			"8036": "Leonardo",
		},
	},
	"2e8a": {
		name: "Raspberry Pi",
		products: map[string]string{
			"0005": "Pico (MicroPython)",
			"000a": "Pico SDK CDC UART",
		},
	},
	"303a": {
		name: "Espressif",
		products: map[string]string{
			"1001": "ESP32-S3/C3 USB JTAG/serial",
		},
	},
	"0483": {
		name: "STMicroelectronics",
		products: map[string]string{
			"5740": "Virtual COM Port",
			"374b": "ST-LINK/V2-1",
		},
	},
}

// IdentifyAdapter looks up a USB serial bridge. ok is false for unknown vendors;
// a known vendor with an unknown product returns an empty Model.
func IdentifyAdapter(vid, pid string) (info AdapterInfo, ok bool) {
	vendor, ok := adapterDatabase[strings.ToLower(vid)]
	if !ok {
		return AdapterInfo{}, false
	}
	return AdapterInfo{
		Vendor: vendor.name,
		Model:  vendor.products[strings.ToLower(pid)],
	}, true
}
