//go:build !linux

package irq

import "context"

// GPIO is only available on linux
type GPIO struct{}

func OpenGPIO(pin int) (*GPIO, error) {
	return nil, ErrNotSupported
}

func (g *GPIO) Wait(ctx context.Context) error { return ErrNotSupported }
func (g *GPIO) Close() error                   { return nil }
