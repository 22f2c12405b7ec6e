package id

import "github.com/google/uuid"

// UUIDGenerator issues globally unique order ids. The id doubles as the
// payment label, so uniqueness keeps gateway lookups unambiguous.
type UUIDGenerator struct{}

func NewUUIDGenerator() *UUIDGenerator { return &UUIDGenerator{} }

func (*UUIDGenerator) NewID() string { return uuid.NewString() }
