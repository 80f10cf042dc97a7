// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package session

import "github.com/blocknetdx/xbridge-go/xbridge/order"

// AddressBookEntry is one routing address the Hub currently has an order
// open against, answering the same local (non-protocol) query the original
// session's getAddressBook served to the wallet layer: which of my
// addresses does the Hub think are tied up in a trade right now.
type AddressBookEntry struct {
	OrderID  order.ID
	Address  string
	Currency order.Currency
}

// AddressBook lists every address the Hub's pending and active orders
// currently reference, across both sides of each order. It needs no wire
// message of its own; callers query their own Session directly.
func (s *Session) AddressBook() []AddressBookEntry {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	var entries []AddressBookEntry
	for _, ex := range s.hubOrders.Pending() {
		entries = append(entries, AddressBookEntry{OrderID: ex.ID, Address: ex.A.Address, Currency: ex.A.Currency})
	}
	for _, ex := range s.hubOrders.Active() {
		entries = append(entries, AddressBookEntry{OrderID: ex.ID, Address: ex.A.Address, Currency: ex.A.Currency})
		if ex.B.Address != "" {
			entries = append(entries, AddressBookEntry{OrderID: ex.ID, Address: ex.B.Address, Currency: ex.B.Currency})
		}
	}
	return entries
}
