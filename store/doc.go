// Package store implements the model store (§4.3/§4.4): the in-memory
// index of items by UUID, the reference graph and its back-edges, the
// deferred-reference ("missed references") table, the two-pass mapping
// algorithm that turns decrypted server/local records into store state,
// and the UUID alternation procedure.
//
// The store is the sole owner of every Item it holds (§3 "Ownership");
// every other package only ever looks items up by UUID.
package store
