// Package models defines the core domain models for the group cart engine.
//
// # Aggregate
//
// A Group is the unit of optimistic concurrency. Everything a group owns is
// stored with it and versioned together:
//   - Member: a user who joined the group (owner or participant)
//   - Invite: a pending invitation addressed to a phone number
//   - CartItem: a line item owned by exactly one member
//   - PaymentSplit: the split policy plus its resolved per-member obligations
//   - GroupOrder: the proof that the group reached the ordered state
//
// SlotLock is not part of the aggregate. Slots are shared by every group, so
// their locks live in their own table keyed by slot id.
//
// # Money
//
// All amounts are integer minor currency units (paise, cents). Nothing in
// this package uses floating point.
//
// # Design Principles
//
//  1. Relationships use ID strings, never pointers between aggregates
//  2. Prices are captured once at add time and never recomputed
//  3. Timestamps are Unix seconds, like the rest of the storage layer
package models
