package flash

import "fmt"

// SlotID identifies one of the fixed firmware storage regions. The set is
// fixed at provisioning time; slots are never created or destroyed at runtime.
type SlotID int

const (
	Factory SlotID = iota
	SlotA
	SlotB
)

func (id SlotID) String() string {
	switch id {
	case Factory:
		return "factory"
	case SlotA:
		return "slot_a"
	case SlotB:
		return "slot_b"
	}
	return fmt.Sprintf("slot(%d)", int(id))
}

// Valid reports whether id names one of the three provisioned slots.
func (id SlotID) Valid() bool {
	return id == Factory || id == SlotA || id == SlotB
}

// ParseSlotID converts a persisted slot name back to its ID.
func ParseSlotID(s string) (SlotID, error) {
	switch s {
	case "factory":
		return Factory, nil
	case "slot_a":
		return SlotA, nil
	case "slot_b":
		return SlotB, nil
	}
	return 0, fmt.Errorf("unknown slot id %q", s)
}

// Role describes what a slot is currently used for. Exactly one slot holds
// RoleActive at any time after provisioning.
type Role int

const (
	RoleInactive Role = iota
	RoleActive
	RoleCandidate
	RoleFactory
)

func (r Role) String() string {
	switch r {
	case RoleInactive:
		return "inactive"
	case RoleActive:
		return "active"
	case RoleCandidate:
		return "candidate"
	case RoleFactory:
		return "factory"
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// State is the lifecycle state of the image stored in a slot.
type State int

const (
	StateEmpty State = iota
	StateWriting
	StateWritten
	StateValid
	StateInvalid
	StatePendingVerify
	StateConfirmed
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateWriting:
		return "writing"
	case StateWritten:
		return "written"
	case StateValid:
		return "valid"
	case StateInvalid:
		return "invalid"
	case StatePendingVerify:
		return "pending_verify"
	case StateConfirmed:
		return "confirmed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Bootable reports whether a slot in this state may be selected as the boot
// target.
func (s State) Bootable() bool {
	return s == StateValid || s == StatePendingVerify || s == StateConfirmed
}

// ImageMeta describes the firmware image held by a slot. It is populated once
// a complete image has been streamed in.
type ImageMeta struct {
	DeclaredSize uint64 `json:"declared_size"`
	Digest       string `json:"digest"` // hex-encoded sha256
	VersionTag   string `json:"version_tag"`
}

// Slot is the in-memory view of one storage region.
type Slot struct {
	ID       SlotID    `json:"id"`
	Role     Role      `json:"role"`
	State    State     `json:"state"`
	Capacity uint64    `json:"capacity"`
	Meta     ImageMeta `json:"meta"`
}
