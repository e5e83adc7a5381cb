package spi

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/google/gousb"
)

// InterfaceKind categorizes bus families
type InterfaceKind string

const (
	InterfaceKindCH341   InterfaceKind = "ch341"
	InterfaceKindSpidev  InterfaceKind = "spidev"
	InterfaceKindUnknown InterfaceKind = "unknown"
	InterfaceKindSim     InterfaceKind = "simulator"
)

// InterfaceInfo describes a detected SPI master
type InterfaceInfo struct {
	Kind        InterfaceKind
	Description string
	VendorID    uint16
	ProductID   uint16
	Serial      string
	Path        string
}

// Label returns a user-friendly description for the interface
func (i InterfaceInfo) Label() string {
	if i.Description != "" {
		return i.Description
	}
	if i.Path != "" {
		return fmt.Sprintf("%s (%s)", i.kind(), i.Path)
	}
	return fmt.Sprintf("%s (%04X:%04X)", i.kind(), i.VendorID, i.ProductID)
}

func (i InterfaceInfo) kind() InterfaceKind {
	if i.Kind == "" {
		return InterfaceKindUnknown
	}
	return i.Kind
}

// spidevGlob is a variable so tests can point discovery at a scratch directory
var spidevGlob = "/dev/spidev*"

// ch341Models are the USB IDs a CH341 in SPI mode enumerates with
var ch341Models = map[[2]uint16]string{
	{VendorIDWCH, ProductIDCH341A}: "WCH CH341A USB-SPI bridge",
}

// DiscoverInterfaces lists CH341 bridges on USB, then spidev nodes, then the
// simulator, which is always present
func DiscoverInterfaces(ctx context.Context) ([]InterfaceInfo, error) {
	found, err := usbBridges(ctx)
	if err != nil {
		return found, err
	}
	nodes, err := spidevNodes()
	if err != nil {
		return found, err
	}
	found = append(found, nodes...)
	return append(found, InterfaceInfo{
		Kind:        InterfaceKindSim,
		Description: "Simulator (no hardware)",
	}), nil
}

func usbBridges(ctx context.Context) ([]InterfaceInfo, error) {
	usb := gousb.NewContext()
	defer usb.Close()

	var found []InterfaceInfo
	// The filter never opens a device; descriptors are enough.
	_, err := usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if ctx.Err() != nil {
			return false
		}
		vid, pid := uint16(desc.Vendor), uint16(desc.Product)
		if name, ok := ch341Models[[2]uint16{vid, pid}]; ok {
			found = append(found, InterfaceInfo{
				Kind:        InterfaceKindCH341,
				Description: name,
				VendorID:    vid,
				ProductID:   pid,
				Path:        fmt.Sprintf("usb:%d.%d", desc.Bus, desc.Address),
			})
		}
		return false
	})
	if errors.Is(err, gousb.ErrorAccess) {
		err = nil
	}
	return found, err
}

func spidevNodes() ([]InterfaceInfo, error) {
	paths, err := filepath.Glob(spidevGlob)
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	nodes := make([]InterfaceInfo, 0, len(paths))
	for _, path := range paths {
		nodes = append(nodes, InterfaceInfo{
			Kind:        InterfaceKindSpidev,
			Description: "Linux spidev " + filepath.Base(path),
			Path:        path,
		})
	}
	return nodes, nil
}
