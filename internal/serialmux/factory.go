package serialmux

import (
	"fmt"
)

// NewRealSerialMux opens the serial device at path with opts and wraps it in
// a SerialMux.
func NewRealSerialMux(path string, opts PortOptions) (*SerialMux[SerialPorter], error) {
	return OpenSerialMux(path, opts, openSerial)
}

// OpenSerialMux is NewRealSerialMux with an injectable opener.
func OpenSerialMux(path string, opts PortOptions, open PortOpener) (*SerialMux[SerialPorter], error) {
	if path == "" {
		return nil, fmt.Errorf("serial port path is required")
	}
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
	}
	return NewSerialMux(port), nil
}
