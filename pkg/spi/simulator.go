package spi

import "sync"

// TransferHook allows the simulator to emulate device-specific MISO behavior.
// The returned slice must be len(w) bytes long.
type TransferHook func(w []byte) ([]byte, error)

// TransferOp captures one transfer for inspection within tests
type TransferOp struct {
	W []byte
	R []byte
}

// SimBus is an in-memory bus useful for unit tests. It records every transfer
// and can optionally provide deterministic MISO data via OnTransfer.
type SimBus struct {
	InfoData BusInfo

	OnTransfer TransferHook

	mu      sync.Mutex
	record  bool
	history []TransferOp
	closed  bool
}

// NewSimBus constructs a simulator configured with the provided BusInfo
func NewSimBus(info BusInfo) *SimBus {
	if info.Kind == "" {
		info.Kind = InterfaceKindSim
	}
	return &SimBus{InfoData: info}
}

// Record turns transfer history capture on or off and clears it
func (s *SimBus) Record(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record = on
	s.history = nil
}

// History returns a copy of the recorded transfers
func (s *SimBus) History() []TransferOp {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TransferOp, len(s.history))
	for i, op := range s.history {
		out[i] = TransferOp{
			W: append([]byte(nil), op.W...),
			R: append([]byte(nil), op.R...),
		}
	}
	return out
}

func (s *SimBus) Info() BusInfo {
	return s.InfoData
}

func (s *SimBus) Tx(w, r []byte) error {
	if err := ValidateTransfer(w, r); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	hook := s.OnTransfer
	s.mu.Unlock()

	var miso []byte
	if hook != nil {
		out, err := hook(w)
		if err != nil {
			return err
		}
		miso = out
	} else {
		// Default: an idle MISO line reads back as all ones.
		miso = make([]byte, len(w))
		for i := range miso {
			miso[i] = 0xFF
		}
	}
	if r != nil {
		copy(r, miso)
	}

	s.mu.Lock()
	if s.record {
		s.history = append(s.history, TransferOp{
			W: append([]byte(nil), w...),
			R: append([]byte(nil), miso...),
		})
	}
	s.mu.Unlock()
	return nil
}

func (s *SimBus) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
