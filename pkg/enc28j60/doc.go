// Package enc28j60 drives a Microchip ENC28J60 Ethernet controller over an
// SPI bus.
//
// The package is split in two layers. Chip speaks the controller's SPI
// instruction set: bank-switched control registers, the buffer memory, and
// the PHY registers behind the MII interface. Driver owns a Chip and runs
// the network side of it: bring-up, the receive ring, transmit with status
// vectors, interrupt dispatch, and recovery from receive overruns.
//
// # Usage
//
//	drv, err := enc28j60.New(bus,
//		enc28j60.WithMAC(mac),
//		enc28j60.WithRxHandler(func(frame []byte) { ... }),
//	)
//	if err := drv.Open(ctx); err != nil {
//		return err
//	}
//	defer drv.Close()
//
//	// Wire the INT line to the driver
//	line.OnFallingEdge(drv.OnInterrupt)
//
//	err = drv.Transmit(ctx, frame)
//
// OnInterrupt never touches the bus. It schedules the driver's worker,
// which reads EIR and handles every pending source in one pass. Handlers
// run afterwards on a separate delivery goroutine, in event order, so they
// may call Transmit, Close or Open.
//
// # Memory layout
//
// The 8 KiB buffer is split into a receive ring and a transmit window,
// 0x0000-0x19FF and 0x1A00-0x1FFF by default. WithLayout changes the split.
//
// Simulator is an in-memory chip for tests and the CLI's simulator bus.
package enc28j60
