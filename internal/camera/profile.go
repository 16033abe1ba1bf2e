package camera

// Profile holds the device constants for one camera family: where the radio
// commands go, what they say, and the network the camera brings up.
type Profile struct {
	// ServiceUUID and CharacteristicUUID locate the command characteristic
	// in the camera's GATT table.
	ServiceUUID        string
	CharacteristicUUID string
	// EnableCommand and DisableCommand toggle the camera's Wi-Fi radio.
	EnableCommand  []byte
	DisableCommand []byte
	// WifiPassword is the PSK of the camera's access point.
	WifiPassword string
	// BaseURL is where the camera's web server lives once its network is up.
	BaseURL string
}

// DefaultProfile matches the stock firmware these cameras ship with.
func DefaultProfile() Profile {
	return Profile{
		ServiceUUID:        "0000ffe0-0000-1000-8000-00805f9b34fb",
		CharacteristicUUID: "0000ffe9-0000-1000-8000-00805f9b34fb",
		EnableCommand:      []byte("GPIO3"),
		DisableCommand:     []byte("GPIO2"),
		WifiPassword:       "12345678",
		BaseURL:            "http://192.168.8.120",
	}
}
