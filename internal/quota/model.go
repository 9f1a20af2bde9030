package quota

import (
	"fmt"
	"time"
)

// Kind is a redeemable resource category.
type Kind string

const (
	Water Kind = "water"
	Meals Kind = "meals"
)

// Kinds lists every resource kind a record tracks.
var Kinds = []Kind{Water, Meals}

// Valid reports whether k is one of the recognized kinds.
func (k Kind) Valid() bool {
	return k == Water || k == Meals
}

// ParseKind converts a request value into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: type must be %q or %q, got %q", ErrValidation, Water, Meals, s)
	}
	return k, nil
}

// Allowance holds one counter per resource kind. It is used both for the
// daily limit and for the units consumed since the last reset.
type Allowance struct {
	Water int `json:"water"`
	Meals int `json:"meals"`
}

// Of returns the counter for k.
func (a Allowance) Of(k Kind) int {
	switch k {
	case Water:
		return a.Water
	case Meals:
		return a.Meals
	}
	return 0
}

func (a *Allowance) inc(k Kind) {
	switch k {
	case Water:
		a.Water++
	case Meals:
		a.Meals++
	}
}

// Keys holds the outstanding redemption key per kind.
type Keys struct {
	WaterKey *string `json:"waterKey"`
	MealKey  *string `json:"mealKey"`
}

// KeyExpiries holds the absolute expiry of each outstanding key.
type KeyExpiries struct {
	WaterExpires *time.Time `json:"waterExpires"`
	MealExpires  *time.Time `json:"mealExpires"`
}

// Record is the quota state of one registered user. The JSON layout is the
// on-disk format shared by every storage gateway.
type Record struct {
	ID            string      `json:"id"`
	Disadvantaged string      `json:"disadvantaged"`
	DailyLimit    Allowance   `json:"dailyLimit"`
	Used          Allowance   `json:"used"`
	LastReset     time.Time   `json:"lastReset"`
	Keys          Keys        `json:"keys"`
	KeyExpires    KeyExpiries `json:"keyExpires"`
}

// Table is the full set of records keyed by user ID.
type Table map[string]Record

func newRecord(id, category string, now time.Time) *Record {
	return &Record{
		ID:            id,
		Disadvantaged: category,
		DailyLimit:    LimitsFor(category),
		LastReset:     now,
	}
}

// Remaining returns the units left today for every kind.
func (r Record) Remaining() Allowance {
	return Allowance{
		Water: r.DailyLimit.Water - r.Used.Water,
		Meals: r.DailyLimit.Meals - r.Used.Meals,
	}
}

// ActiveKey returns the outstanding key for k and its expiry. ok is false
// when no key is stored or its expiry is missing.
func (r Record) ActiveKey(k Kind) (key string, expires time.Time, ok bool) {
	var kp *string
	var ep *time.Time
	switch k {
	case Water:
		kp, ep = r.Keys.WaterKey, r.KeyExpires.WaterExpires
	case Meals:
		kp, ep = r.Keys.MealKey, r.KeyExpires.MealExpires
	}
	if kp == nil || ep == nil {
		return "", time.Time{}, false
	}
	return *kp, *ep, true
}

func (r *Record) setKey(k Kind, key string, expires time.Time) {
	switch k {
	case Water:
		r.Keys.WaterKey, r.KeyExpires.WaterExpires = &key, &expires
	case Meals:
		r.Keys.MealKey, r.KeyExpires.MealExpires = &key, &expires
	}
}

func (r *Record) clearKey(k Kind) {
	switch k {
	case Water:
		r.Keys.WaterKey, r.KeyExpires.WaterExpires = nil, nil
	case Meals:
		r.Keys.MealKey, r.KeyExpires.MealExpires = nil, nil
	}
}

// clone returns a deep copy so callers never share key pointers with the ledger.
func (r Record) clone() Record {
	c := r
	c.Keys = Keys{WaterKey: copyPtr(r.Keys.WaterKey), MealKey: copyPtr(r.Keys.MealKey)}
	c.KeyExpires = KeyExpiries{
		WaterExpires: copyPtr(r.KeyExpires.WaterExpires),
		MealExpires:  copyPtr(r.KeyExpires.MealExpires),
	}
	return c
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
