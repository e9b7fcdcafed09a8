package wire

// AckStatus is the outcome a transport reports for an acknowledged frame.
type AckStatus uint8

const (
	// AckOK indicates the hub accepted the frame.
	AckOK AckStatus = 0

	// AckError indicates the transport or hub rejected the frame.
	AckError AckStatus = 1

	// AckTimeout indicates the transport gave up waiting for the hub.
	AckTimeout AckStatus = 2

	// AckDeviceDisabled indicates the hub refused traffic for a disabled device.
	AckDeviceDisabled AckStatus = 3
)

// String returns the status name.
func (s AckStatus) String() string {
	switch s {
	case AckOK:
		return "OK"
	case AckError:
		return "ERROR"
	case AckTimeout:
		return "TIMEOUT"
	case AckDeviceDisabled:
		return "DEVICE_DISABLED"
	default:
		return "UNKNOWN"
	}
}

// IsSuccess returns true if the status indicates success.
func (s AckStatus) IsSuccess() bool {
	return s == AckOK
}
