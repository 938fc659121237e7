package models

// ValueState describes whether a field slot carries information.
type ValueState uint8

const (
	// StateUnset means nothing is known about the field.
	StateUnset ValueState = iota
	// StateDeclined means the user explicitly declined to provide the field.
	StateDeclined
	// StatePresent means the slot holds a value.
	StatePresent
)

// Value is a tagged optional slot for a single trade field.
type Value[T any] struct {
	state ValueState
	v     T
}

// Some returns a present value.
func Some[T any](v T) Value[T] {
	return Value[T]{state: StatePresent, v: v}
}

// Declined returns an explicit null.
func Declined[T any]() Value[T] {
	return Value[T]{state: StateDeclined}
}

// State returns the slot state.
func (v Value[T]) State() ValueState {
	return v.state
}

// IsPresent reports whether the slot holds a value.
func (v Value[T]) IsPresent() bool {
	return v.state == StatePresent
}

// IsDeclined reports whether the slot is an explicit null.
func (v Value[T]) IsDeclined() bool {
	return v.state == StateDeclined
}

// IsUnset reports whether nothing is known about the slot.
func (v Value[T]) IsUnset() bool {
	return v.state == StateUnset
}

// Get returns the value and whether it is present.
func (v Value[T]) Get() (T, bool) {
	return v.v, v.state == StatePresent
}

// OrZero returns the value or the zero value of T.
func (v Value[T]) OrZero() T {
	return v.v
}
