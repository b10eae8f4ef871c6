package as7265x

import (
	"context"
	"fmt"
	"sync"
)

// TxKind is the direction of a simulated physical register transaction.
type TxKind int

const (
	TxRead TxKind = iota
	TxWrite
)

func (k TxKind) String() string {
	if k == TxWrite {
		return "write"
	}
	return "read"
}

// Transaction is a physical register access seen by the simulated device.
type Transaction struct {
	Kind     TxKind
	Register byte
	Value    byte
	// Group is the sub-sensor selected when the transaction happened.
	Group Group
}

// FaultFunc is consulted before every physical register transaction. A non
// nil error fails the transaction without touching the device state.
type FaultFunc func(tx Transaction) error

// SimulatedDevice models the AS7265x I2C slave interface: the STATUS, WRITE
// and READ registers, the virtual register file and the three multiplexed
// channel banks. It implements spectral.I2CBus and needs no hardware.
//
// Every write to WRITE keeps TX_VALID set for TxBusyPolls status reads, and
// a read designation raises RX_VALID after RxDelayPolls status reads. Accesses
// that break the handshake rules are recorded as violations.
type SimulatedDevice struct {
	mx sync.Mutex

	address      byte
	txBusyPolls  int
	rxDelayPolls int
	recording    bool

	regs     [int(maxVirtualRegister) + 1]byte
	channels [len(Groups)][ChannelsPerGroup]uint16
	writes   map[byte]int

	pointer    byte
	pending    bool
	pendingReg byte
	txBusy     int
	rxValid    bool
	rxWait     int
	rxValue    byte
	stuckTx    bool
	stuckRx    bool
	absent     bool

	fault      FaultFunc
	log        []Transaction
	violations []string
}

type SimOpt func(*SimulatedDevice)

// WithTxBusyPolls sets how many status reads TX_VALID stays set after a write.
func WithTxBusyPolls(n int) SimOpt {
	return func(s *SimulatedDevice) {
		s.txBusyPolls = n
	}
}

// WithRxDelayPolls sets how many status reads pass before RX_VALID is raised.
func WithRxDelayPolls(n int) SimOpt {
	return func(s *SimulatedDevice) {
		s.rxDelayPolls = n
	}
}

// WithRecording keeps a log of every physical transaction.
func WithRecording() SimOpt {
	return func(s *SimulatedDevice) {
		s.recording = true
	}
}

func WithSimAddress(address byte) SimOpt {
	return func(s *SimulatedDevice) {
		s.address = address
	}
}

func NewSimulatedDevice(opts ...SimOpt) *SimulatedDevice {
	s := &SimulatedDevice{
		address:      DefaultAddress,
		txBusyPolls:  1,
		rxDelayPolls: 1,
		writes:       map[byte]int{},
	}
	s.regs[VRegDeviceType] = 0x40
	s.regs[VRegHWVersion] = 0x41
	s.regs[VRegFWVersion] = 0x0C
	s.regs[VRegTemperature] = 25
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetChannels sets the raw values reported for group g.
func (s *SimulatedDevice) SetChannels(g Group, values [ChannelsPerGroup]uint16) {
	s.mx.Lock()
	defer s.mx.Unlock()
	if g.Valid() {
		s.channels[g] = values
	}
}

// SetRegister sets a virtual register without a handshake.
func (s *SimulatedDevice) SetRegister(reg, value byte) {
	s.mx.Lock()
	defer s.mx.Unlock()
	if reg <= maxVirtualRegister {
		s.regs[reg] = value
	}
}

// Register returns the content of a virtual register.
func (s *SimulatedDevice) Register(reg byte) byte {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.virtual(reg)
}

// Writes returns how many completed virtual writes targeted reg.
func (s *SimulatedDevice) Writes(reg byte) int {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.writes[reg]
}

// SetStuck keeps TX_VALID set and/or RX_VALID clear forever.
func (s *SimulatedDevice) SetStuck(tx, rx bool) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.stuckTx = tx
	s.stuckRx = rx
}

// SetAbsent makes the device NACK every transaction.
func (s *SimulatedDevice) SetAbsent(absent bool) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.absent = absent
}

func (s *SimulatedDevice) InjectFault(fn FaultFunc) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.fault = fn
}

func (s *SimulatedDevice) Transactions() []Transaction {
	s.mx.Lock()
	defer s.mx.Unlock()
	out := make([]Transaction, len(s.log))
	copy(out, s.log)
	return out
}

// Violations lists handshake rule violations observed so far.
func (s *SimulatedDevice) Violations() []string {
	s.mx.Lock()
	defer s.mx.Unlock()
	out := make([]string, len(s.violations))
	copy(out, s.violations)
	return out
}

func (s *SimulatedDevice) ResetLog() {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.log = nil
	s.violations = nil
}

func (s *SimulatedDevice) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if err := s.ack(ctx, address); err != nil {
		return err
	}
	switch len(buffer) {
	case 0:
		return nil
	case 1:
		s.pointer = buffer[0]
		return nil
	}
	tx := Transaction{Kind: TxWrite, Register: buffer[0], Value: buffer[1], Group: s.group()}
	if s.fault != nil {
		if err := s.fault(tx); err != nil {
			return err
		}
	}
	s.record(tx)
	s.pointer = buffer[0]
	if buffer[0] != RegWrite {
		s.violate("write to read-only register %#02x", buffer[0])
		return nil
	}
	s.handleWrite(buffer[1])
	return nil
}

func (s *SimulatedDevice) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if err := s.ack(ctx, address); err != nil {
		return err
	}
	if len(buffer) == 0 {
		return nil
	}
	tx := Transaction{Kind: TxRead, Register: s.pointer, Group: s.group()}
	if s.fault != nil {
		if err := s.fault(tx); err != nil {
			return err
		}
	}
	var value byte
	switch s.pointer {
	case RegStatus:
		value = s.status()
	case RegRead:
		if !s.rxValid || s.rxWait > 0 || s.stuckRx {
			s.violate("READ register read while RX_VALID clear")
		}
		value = s.rxValue
		s.rxValid = false
	}
	tx.Value = value
	s.record(tx)
	for i := range buffer {
		buffer[i] = value
	}
	return nil
}

func (s *SimulatedDevice) Release(ctx context.Context) error {
	return nil
}

func (s *SimulatedDevice) ack(ctx context.Context, address byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.absent || address != s.address {
		return fmt.Errorf("sim: no acknowledge from %#02x", address)
	}
	return nil
}

// status returns the status register and advances the busy counters.
func (s *SimulatedDevice) status() byte {
	var st byte
	if s.txBusy > 0 || s.stuckTx {
		st |= StatusTxValid
	}
	if s.rxValid && s.rxWait == 0 && !s.stuckRx {
		st |= StatusRxValid
	}
	if s.txBusy > 0 {
		s.txBusy--
	}
	if s.rxWait > 0 {
		s.rxWait--
	}
	return st
}

func (s *SimulatedDevice) handleWrite(value byte) {
	if s.txBusy > 0 || s.stuckTx {
		s.violate("WRITE register written while TX_VALID set (%#02x)", value)
	}
	s.txBusy = s.txBusyPolls
	if s.pending {
		s.store(s.pendingReg, value)
		s.pending = false
		return
	}
	if value&writeFlag != 0 {
		s.pending = true
		s.pendingReg = value &^ writeFlag
		return
	}
	s.rxValue = s.virtual(value)
	s.rxValid = true
	s.rxWait = s.rxDelayPolls
}

func (s *SimulatedDevice) store(reg, value byte) {
	s.writes[reg]++
	if isChannelRegister(reg) {
		return
	}
	s.regs[reg] = value
}

func (s *SimulatedDevice) virtual(reg byte) byte {
	if reg > maxVirtualRegister {
		return 0
	}
	if isChannelRegister(reg) {
		off := reg - VRegDataStart
		v := s.channels[s.group()][off/2]
		if off%2 == 0 {
			return byte(v >> 8)
		}
		return byte(v)
	}
	return s.regs[reg]
}

func (s *SimulatedDevice) group() Group {
	g := Group(s.regs[VRegDeviceSelect])
	if !g.Valid() {
		return Group1
	}
	return g
}

func (s *SimulatedDevice) record(tx Transaction) {
	if s.recording {
		s.log = append(s.log, tx)
	}
}

func (s *SimulatedDevice) violate(format string, args ...any) {
	s.violations = append(s.violations, fmt.Sprintf(format, args...))
}

func isChannelRegister(reg byte) bool {
	return reg >= VRegDataStart && reg < VRegDataStart+2*ChannelsPerGroup
}
