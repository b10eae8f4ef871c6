package as7265x

import (
	"context"
	"fmt"
	"time"
)

// Handshake steps, reported in ProtocolError.Step.
const (
	stepValidate    = "validate address"
	stepAwaitTx     = "await write register free"
	stepAddress     = "write address"
	stepAwaitTxData = "await write register free for data"
	stepData        = "write data"
	stepAwaitRx     = "await read register valid"
	stepRead        = "read data"
)

// WriteVirtual writes value to a virtual register:
//
//  1. poll STATUS until TX_VALID clears
//  2. write reg|0x80 to WRITE (address designation)
//  3. poll STATUS until TX_VALID clears
//  4. write value to WRITE
//
// The bus lock is held for the whole sequence.
func (d *Device) WriteVirtual(ctx context.Context, reg, value byte) error {
	if reg > maxVirtualRegister {
		return &ProtocolError{Op: OpWrite, Register: reg, Step: stepValidate, Err: ErrInvalidRegister}
	}
	d.lock.Lock()
	defer d.lock.Unlock()
	err := d.awaitStatus(ctx, OpWrite, reg, stepAwaitTx, txFree)
	if err != nil {
		return err
	}
	err = d.tr.writeByte(ctx, RegWrite, reg|writeFlag)
	if err != nil {
		return &ProtocolError{Op: OpWrite, Register: reg, Step: stepAddress, Err: err}
	}
	err = d.awaitStatus(ctx, OpWrite, reg, stepAwaitTxData, txFree)
	if err != nil {
		return err
	}
	err = d.tr.writeByte(ctx, RegWrite, value)
	if err != nil {
		return &ProtocolError{Op: OpWrite, Register: reg, Step: stepData, Err: err}
	}
	return nil
}

// ReadVirtual reads a virtual register:
//
//  1. poll STATUS until TX_VALID clears
//  2. write reg to WRITE (address designation, write flag clear)
//  3. poll STATUS until RX_VALID sets
//  4. read READ, which clears RX_VALID on the device
func (d *Device) ReadVirtual(ctx context.Context, reg byte) (byte, error) {
	if reg > maxVirtualRegister {
		return 0, &ProtocolError{Op: OpRead, Register: reg, Step: stepValidate, Err: ErrInvalidRegister}
	}
	d.lock.Lock()
	defer d.lock.Unlock()
	err := d.awaitStatus(ctx, OpRead, reg, stepAwaitTx, txFree)
	if err != nil {
		return 0, err
	}
	err = d.tr.writeByte(ctx, RegWrite, reg)
	if err != nil {
		return 0, &ProtocolError{Op: OpRead, Register: reg, Step: stepAddress, Err: err}
	}
	err = d.awaitStatus(ctx, OpRead, reg, stepAwaitRx, rxReady)
	if err != nil {
		return 0, err
	}
	value, err := d.tr.readByte(ctx, RegRead)
	if err != nil {
		return 0, &ProtocolError{Op: OpRead, Register: reg, Step: stepRead, Err: err}
	}
	return value, nil
}

func txFree(status byte) bool {
	return status&StatusTxValid == 0
}

func rxReady(status byte) bool {
	return status&StatusRxValid != 0
}

// awaitStatus polls STATUS until ready reports true or the polling bound is
// exceeded. The time bound only applies after MinPolls reads, since a single
// read over a USB bridge can take longer than PollTimeout.
func (d *Device) awaitStatus(ctx context.Context, op Op, reg byte, step string, ready func(byte) bool) error {
	deadline := time.Now().Add(d.config.PollTimeout)
	for polls := 1; ; polls++ {
		status, err := d.tr.readByte(ctx, RegStatus)
		if err != nil {
			return &ProtocolError{Op: op, Register: reg, Step: step, Err: err}
		}
		if ready(status) {
			return nil
		}
		exhausted := d.config.MaxPolls > 0 && polls >= d.config.MaxPolls
		expired := polls >= d.config.MinPolls && !time.Now().Before(deadline)
		if exhausted || expired {
			return &ProtocolError{Op: op, Register: reg, Step: step,
				Err: fmt.Errorf("%w: status %#02x after %d polls", ErrProtocolTimeout, status, polls)}
		}
		err = sleep(ctx, d.config.PollInterval)
		if err != nil {
			return &ProtocolError{Op: op, Register: reg, Step: step, Err: err}
		}
	}
}
