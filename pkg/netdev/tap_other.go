//go:build !linux

package netdev

// TapDevice is only available on linux
type TapDevice struct{}

func NewTapDevice(name string) (*TapDevice, error) {
	return nil, ErrNotSupported
}

func (t *TapDevice) Name() string                { return "" }
func (t *TapDevice) ReadPacket() ([]byte, error) { return nil, ErrNotSupported }
func (t *TapDevice) WritePacket([]byte) error    { return ErrNotSupported }
func (t *TapDevice) Close() error                { return nil }
