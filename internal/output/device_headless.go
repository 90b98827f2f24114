//go:build headless

package output

// Device is unavailable in headless builds.
type Device struct{}

// OpenDevice always fails in headless builds.
func OpenDevice(Source) (*Device, error) {
	return nil, ErrNoDevice
}

func (d *Device) Start() {}

func (d *Device) Err() error { return ErrNoDevice }

func (d *Device) Close() error { return nil }
