// Package quota is the storage-quota admission gate.
//
// Every persisted entity contributes SizeInBytes to its world owner's usage,
// keyed by a StorageKey. A write is admitted only if
//
//	used - existing(key) + size <= allocated
//
// and after a successful save the key's contribution is replaced, never
// added twice. Admit runs check, save and commit under a per-owner lock so
// two concurrent writers cannot both pass the check and jointly exceed the
// allocation. The ledger's Record re-verifies the limit inside its own
// transaction, which covers writers that bypass the lock.
package quota
