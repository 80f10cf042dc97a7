// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package session

import (
	"github.com/blocknetdx/xbridge-go/xbridge/order"
	"github.com/blocknetdx/xbridge-go/xbridge/packet"
	"github.com/blocknetdx/xbridge-go/xbridge/wire"
)

// orderIDOf extracts the order id from a packet's payload without fully
// validating it, so the retry queue (wait.Waiter.OrderID) can key on it
// even for a packet the handler is about to reject.
func orderIDOf(pkt *packet.Packet) (order.ID, bool) {
	switch pkt.Command {
	case packet.Transaction:
		if v, err := wire.UnmarshalTransaction(pkt.Payload); err == nil {
			return v.Hash, true
		}
	case packet.PendingTransaction:
		if v, err := wire.UnmarshalPendingTransaction(pkt.Payload); err == nil {
			return v.Hash, true
		}
	case packet.TransactionAccepting:
		if v, err := wire.UnmarshalTransactionAccepting(pkt.Payload); err == nil {
			return v.Hash, true
		}
	case packet.TransactionHold:
		if v, err := wire.UnmarshalTransactionHold(pkt.Payload); err == nil {
			return v.Hash, true
		}
	case packet.TransactionHoldApply:
		if v, err := wire.UnmarshalTransactionHoldApply(pkt.Payload); err == nil {
			return v.Hash, true
		}
	case packet.TransactionInit:
		if v, err := wire.UnmarshalTransactionInit(pkt.Payload); err == nil {
			return v.Hash, true
		}
	case packet.TransactionInitialized:
		if v, err := wire.UnmarshalTransactionInitialized(pkt.Payload); err == nil {
			return v.Hash, true
		}
	case packet.TransactionCreateA:
		if v, err := wire.UnmarshalTransactionCreateA(pkt.Payload); err == nil {
			return v.Hash, true
		}
	case packet.TransactionCreatedA:
		if v, err := wire.UnmarshalTransactionCreatedA(pkt.Payload); err == nil {
			return v.Hash, true
		}
	case packet.TransactionCreateB:
		if v, err := wire.UnmarshalTransactionCreateB(pkt.Payload); err == nil {
			return v.Hash, true
		}
	case packet.TransactionCreatedB:
		if v, err := wire.UnmarshalTransactionCreatedB(pkt.Payload); err == nil {
			return v.Hash, true
		}
	case packet.TransactionConfirmA:
		if v, err := wire.UnmarshalTransactionConfirmA(pkt.Payload); err == nil {
			return v.Hash, true
		}
	case packet.TransactionConfirmB:
		if v, err := wire.UnmarshalTransactionConfirmB(pkt.Payload); err == nil {
			return v.Hash, true
		}
	case packet.TransactionConfirmedA:
		if v, err := wire.UnmarshalTransactionConfirmedA(pkt.Payload); err == nil {
			return v.Hash, true
		}
	case packet.TransactionConfirmedB:
		if v, err := wire.UnmarshalTransactionConfirmedB(pkt.Payload); err == nil {
			return v.Hash, true
		}
	case packet.TransactionCancel:
		if v, err := wire.UnmarshalTransactionCancel(pkt.Payload); err == nil {
			return v.Hash, true
		}
	case packet.TransactionFinished:
		if v, err := wire.UnmarshalTransactionFinished(pkt.Payload); err == nil {
			return v.Hash, true
		}
	}
	return order.ID{}, false
}
