// Package chain holds the on-chain vocabulary shared by the watcher and
// autopay: address parsing and canonicalisation, relay-address detection,
// address fingerprints for the subscription protocol, satoshi conversion,
// and the Client interface of the blockchain subscription service.
//
// Addresses are canonicalised to their cashaddr form ("bitcoincash:q...")
// so that the same destination always maps to the same index key no matter
// which encoding a notification or transaction used.
package chain
