package kerneldev

import (
	"fmt"
	"sync"

	"github.com/malivvan/uis/wire"
)

// SimReport describes one simulated report's shape for Sim.
type SimReport struct {
	ID    uint8
	Items []wire.ItemInfoReply
}

// SimSpec describes a simulated device's shape, analogous to what a real
// kernel DEVICE_INFO/REPORT_INFO/ITEM_INFO walk would discover.
type SimSpec struct {
	Usage   wire.Usage
	NameID  uint32
	Reports [wire.NumReportTypes][]SimReport
}

// Sim is an in-memory stand-in for the kernel's application-collection
// pseudo-file, implementing Handle. It is the external-collaborator test
// double used by unit tests and by the demo CLI's `--simulate` mode: no
// real HID hardware or kernel driver is required to exercise the registry,
// reader-thread, and RPC-dispatcher logic this module owns.
type Sim struct {
	spec SimSpec

	mu      sync.Mutex
	strings map[uint32]simString
	reports map[uint64]*simReportState
	closed  bool

	nextHandle uint64
}

type simString struct {
	data     []byte
	encoding wire.StringEncoding
}

type simReportState struct {
	handle   uint64
	typ      wire.ReportType
	pending  chan wire.ReportData
	stopped  chan struct{} // closed by GoNotReady: device went not-ready
	released chan struct{} // closed by Stop: a clean, requested release
}

// NewSim constructs a Sim device from spec, with report handles assigned
// deterministically in construction order. Item replies are returned as
// given in spec.
func NewSim(spec SimSpec) *Sim {
	s := &Sim{
		spec:       spec,
		strings:    make(map[uint32]simString),
		reports:    make(map[uint64]*simReportState),
		nextHandle: 1,
	}
	for t := wire.ReportTypeInput; int(t) < wire.NumReportTypes; t++ {
		for range spec.Reports[t] {
			h := s.nextHandle
			s.nextHandle++
			s.reports[h] = &simReportState{
				handle:   h,
				typ:      t,
				pending:  make(chan wire.ReportData, 8),
				stopped:  make(chan struct{}),
				released: make(chan struct{}),
			}
		}
	}
	return s
}

// SetString registers the string the device exposes for id, for STRING_INFO.
func (s *Sim) SetString(id uint32, text string, enc wire.StringEncoding) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strings[id] = simString{data: []byte(text), encoding: enc}
}

// Deliver enqueues a report_data for the index'th report in construction
// order of type t (a test/demo driving simulated hardware input).
func (s *Sim) Deliver(t wire.ReportType, index int, items []wire.ItemDatum) error {
	h, err := s.handleFor(t, index)
	if err != nil {
		return err
	}
	s.mu.Lock()
	st, ok := s.reports[h]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("kerneldev/sim: no such report: %w", wire.ErrBadValue)
	}
	st.pending <- wire.ReportData{Report: h, Items: items}
	return nil
}

// GoNotReady simulates hot-unplug: DEVICE_INFO and SEND henceforth fail
// with device-gone, and READ returns device-gone once no delivered data is
// pending. REPORT_INFO, ITEM_INFO, STRING_INFO and STOP keep answering.
func (s *Sim) GoNotReady() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for _, st := range s.reports {
		select {
		case <-st.stopped:
		default:
			close(st.stopped)
		}
	}
}

func (s *Sim) handleFor(t wire.ReportType, index int) (uint64, error) {
	hs := s.orderedHandlesOfType(t)
	if index < 0 || index >= len(hs) {
		return 0, fmt.Errorf("kerneldev/sim: report index %d out of range: %w", index, wire.ErrBadValue)
	}
	return hs[index], nil
}

func (s *Sim) DeviceInfo() (wire.DeviceInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return wire.DeviceInfo{}, fmt.Errorf("kerneldev/sim: %w", wire.ErrDeviceGone)
	}
	var di wire.DeviceInfo
	di.Usage = s.spec.Usage
	di.NameID = s.spec.NameID
	for t := range di.ReportCount {
		di.ReportCount[t] = int32(len(s.spec.Reports[t]))
	}
	return di, nil
}

func (s *Sim) ReportInfo(t wire.ReportType, index int) (wire.ReportInfoReply, error) {
	if int(t) >= wire.NumReportTypes || index < 0 || index >= len(s.spec.Reports[t]) {
		return wire.ReportInfoReply{}, fmt.Errorf("kerneldev/sim: report %s[%d]: %w", t, index, wire.ErrBadValue)
	}
	h, err := s.handleFor(t, index)
	if err != nil {
		return wire.ReportInfoReply{}, err
	}
	spec := s.spec.Reports[t][index]
	return wire.ReportInfoReply{Report: h, ID: spec.ID, ItemCount: int32(len(spec.Items))}, nil
}

func (s *Sim) ItemInfo(report uint64, index int) (wire.ItemInfoReply, error) {
	t, idx, err := s.lookupReportSpec(report)
	if err != nil {
		return wire.ItemInfoReply{}, err
	}
	spec := s.spec.Reports[t][idx]
	if index < 0 || index >= len(spec.Items) {
		return wire.ItemInfoReply{}, fmt.Errorf("kerneldev/sim: item %d: %w", index, wire.ErrBadValue)
	}
	return spec.Items[index], nil
}

func (s *Sim) lookupReportSpec(handle uint64) (wire.ReportType, int, error) {
	s.mu.Lock()
	st, ok := s.reports[handle]
	s.mu.Unlock()
	if !ok {
		return 0, 0, fmt.Errorf("kerneldev/sim: no such report handle: %w", wire.ErrBadValue)
	}
	for i, h := range s.orderedHandlesOfType(st.typ) {
		if h == handle {
			return st.typ, i, nil
		}
	}
	return 0, 0, fmt.Errorf("kerneldev/sim: no such report handle: %w", wire.ErrBadValue)
}

func (s *Sim) orderedHandlesOfType(t wire.ReportType) []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var hs []uint64
	for h, st := range s.reports {
		if st.typ == t {
			hs = append(hs, h)
		}
	}
	// handles were assigned in ascending construction order per type
	for i := 0; i < len(hs); i++ {
		for j := i + 1; j < len(hs); j++ {
			if hs[j] < hs[i] {
				hs[i], hs[j] = hs[j], hs[i]
			}
		}
	}
	return hs
}

func (s *Sim) StringInfo(id uint32) ([]byte, wire.StringEncoding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	str, ok := s.strings[id]
	if !ok {
		return nil, 0, fmt.Errorf("kerneldev/sim: no such string %d: %w", id, wire.ErrIOFailed)
	}
	return str.data, str.encoding, nil
}

func (s *Sim) Read(report uint64) (wire.ReportData, error) {
	s.mu.Lock()
	st, ok := s.reports[report]
	s.mu.Unlock()
	if !ok {
		return wire.ReportData{}, fmt.Errorf("kerneldev/sim: no such report: %w", wire.ErrBadValue)
	}
	select {
	case rd := <-st.pending:
		return rd, nil
	case <-st.released:
		return wire.ReportData{}, fmt.Errorf("kerneldev/sim: %w", wire.ErrReportStopped)
	case <-st.stopped:
		return wire.ReportData{}, fmt.Errorf("kerneldev/sim: %w", wire.ErrDeviceGone)
	}
}

func (s *Sim) Send(data wire.ReportData) error {
	s.mu.Lock()
	_, ok := s.reports[data.Report]
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return fmt.Errorf("kerneldev/sim: %w", wire.ErrDeviceGone)
	}
	if !ok {
		return fmt.Errorf("kerneldev/sim: no such report: %w", wire.ErrBadValue)
	}
	return nil
}

func (s *Sim) Stop(report uint64) error {
	s.mu.Lock()
	st, ok := s.reports[report]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("kerneldev/sim: no such report: %w", wire.ErrBadValue)
	}
	select {
	case <-st.released:
	default:
		close(st.released)
	}
	return nil
}

func (s *Sim) Close() error {
	s.GoNotReady()
	return nil
}
