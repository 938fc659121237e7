package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FieldName names a trade field.
type FieldName string

const (
	FieldTicker         FieldName = "ticker"
	FieldPnL            FieldName = "pnl"
	FieldPositionType   FieldName = "position_type"
	FieldEntryTimestamp FieldName = "entry_timestamp"
	FieldExitTimestamp  FieldName = "exit_timestamp"
	FieldNotes          FieldName = "notes"
	FieldUserID         FieldName = "user_id"
)

// RequiredFields is the fixed order in which missing fields are reported and
// prompted for.
var RequiredFields = []FieldName{
	FieldTicker,
	FieldPnL,
	FieldPositionType,
	FieldEntryTimestamp,
	FieldExitTimestamp,
}

// KnownFields lists every field the Fields struct has a slot for.
var KnownFields = []FieldName{
	FieldTicker,
	FieldPnL,
	FieldPositionType,
	FieldEntryTimestamp,
	FieldExitTimestamp,
	FieldNotes,
}

// IsKnownField reports whether name has a typed slot.
func IsKnownField(name string) bool {
	for _, f := range KnownFields {
		if string(f) == name {
			return true
		}
	}
	return false
}

// Fields is the structured state of a trade under capture. Each known field
// has its own tagged slot; anything else the model returns lands in Extra.
type Fields struct {
	Ticker         Value[string]
	PnL            Value[decimal.Decimal]
	PositionType   Value[string]
	EntryTimestamp Value[time.Time]
	ExitTimestamp  Value[time.Time]
	Notes          Value[string]
	Extra          map[string]string
}

// Has reports whether the named field holds a non-blank value.
func (f Fields) Has(name FieldName) bool {
	v, ok := f.Get(name)
	return ok && !IsFalsy(v)
}

// IsDeclined reports whether the named field was explicitly declined.
func (f Fields) IsDeclined(name FieldName) bool {
	switch name {
	case FieldTicker:
		return f.Ticker.IsDeclined()
	case FieldPnL:
		return f.PnL.IsDeclined()
	case FieldPositionType:
		return f.PositionType.IsDeclined()
	case FieldEntryTimestamp:
		return f.EntryTimestamp.IsDeclined()
	case FieldExitTimestamp:
		return f.ExitTimestamp.IsDeclined()
	case FieldNotes:
		return f.Notes.IsDeclined()
	}
	return false
}

// Get returns the raw value of a present slot.
func (f Fields) Get(name FieldName) (any, bool) {
	switch name {
	case FieldTicker:
		v, ok := f.Ticker.Get()
		return v, ok
	case FieldPnL:
		v, ok := f.PnL.Get()
		return v, ok
	case FieldPositionType:
		v, ok := f.PositionType.Get()
		return v, ok
	case FieldEntryTimestamp:
		v, ok := f.EntryTimestamp.Get()
		return v, ok
	case FieldExitTimestamp:
		v, ok := f.ExitTimestamp.Get()
		return v, ok
	case FieldNotes:
		v, ok := f.Notes.Get()
		return v, ok
	}
	if v, ok := f.Extra[string(name)]; ok {
		return v, true
	}
	return nil, false
}

// IsEmpty reports whether no slot carries information.
func (f Fields) IsEmpty() bool {
	for _, name := range KnownFields {
		if _, ok := f.Get(name); ok || f.IsDeclined(name) {
			return false
		}
	}
	return len(f.Extra) == 0
}

// Raw returns present, non-blank values keyed by field name. Declined slots
// are left out.
func (f Fields) Raw() map[string]any {
	raw := make(map[string]any)
	for _, name := range KnownFields {
		if f.Has(name) {
			v, _ := f.Get(name)
			raw[string(name)] = v
		}
	}
	for k, v := range f.Extra {
		if strings.TrimSpace(v) != "" {
			raw[k] = v
		}
	}
	return raw
}

// Overlay returns a copy of f where every slot that carries information in
// top (present or declined) replaces the slot in f.
func (f Fields) Overlay(top Fields) Fields {
	out := f.clone()
	if !top.Ticker.IsUnset() {
		out.Ticker = top.Ticker
	}
	if !top.PnL.IsUnset() {
		out.PnL = top.PnL
	}
	if !top.PositionType.IsUnset() {
		out.PositionType = top.PositionType
	}
	if !top.EntryTimestamp.IsUnset() {
		out.EntryTimestamp = top.EntryTimestamp
	}
	if !top.ExitTimestamp.IsUnset() {
		out.ExitTimestamp = top.ExitTimestamp
	}
	if !top.Notes.IsUnset() {
		out.Notes = top.Notes
	}
	for k, v := range top.Extra {
		if out.Extra == nil {
			out.Extra = make(map[string]string)
		}
		out.Extra[k] = v
	}
	return out
}

// FallbackTo returns a copy of f where every slot without a non-blank value
// takes the corresponding slot from prior.
func (f Fields) FallbackTo(prior Fields) Fields {
	out := f.clone()
	if !f.Has(FieldTicker) && prior.Has(FieldTicker) {
		out.Ticker = prior.Ticker
	}
	if !f.Has(FieldPnL) && prior.Has(FieldPnL) {
		out.PnL = prior.PnL
	}
	if !f.Has(FieldPositionType) && prior.Has(FieldPositionType) {
		out.PositionType = prior.PositionType
	}
	if !f.Has(FieldEntryTimestamp) && prior.Has(FieldEntryTimestamp) {
		out.EntryTimestamp = prior.EntryTimestamp
	}
	if !f.Has(FieldExitTimestamp) && prior.Has(FieldExitTimestamp) {
		out.ExitTimestamp = prior.ExitTimestamp
	}
	if !f.Has(FieldNotes) && prior.Has(FieldNotes) {
		out.Notes = prior.Notes
	}
	return out
}

// MergeFrom copies every non-blank slot of incoming into f. Blank, declined,
// and unset slots never overwrite what f already holds.
func (f *Fields) MergeFrom(incoming Fields) {
	if incoming.Has(FieldTicker) {
		f.Ticker = incoming.Ticker
	}
	if incoming.Has(FieldPnL) {
		f.PnL = incoming.PnL
	}
	if incoming.Has(FieldPositionType) {
		f.PositionType = incoming.PositionType
	}
	if incoming.Has(FieldEntryTimestamp) {
		f.EntryTimestamp = incoming.EntryTimestamp
	}
	if incoming.Has(FieldExitTimestamp) {
		f.ExitTimestamp = incoming.ExitTimestamp
	}
	if incoming.Has(FieldNotes) {
		f.Notes = incoming.Notes
	}
	for k, v := range incoming.Extra {
		if strings.TrimSpace(v) == "" {
			continue
		}
		if f.Extra == nil {
			f.Extra = make(map[string]string)
		}
		f.Extra[k] = v
	}
}

func (f Fields) clone() Fields {
	out := f
	if f.Extra != nil {
		out.Extra = make(map[string]string, len(f.Extra))
		for k, v := range f.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// DecodeFields converts a raw field map leniently: known fields are coerced
// where possible and dropped otherwise, null known fields become declined,
// and unknown keys are stringified into Extra.
func DecodeFields(raw map[string]any) Fields {
	f, _ := DecodeFieldsChecked(raw)
	return f
}

// DecodeFieldsChecked is DecodeFields that also returns the coercion error
// of every known field it dropped.
func DecodeFieldsChecked(raw map[string]any) (Fields, map[FieldName]error) {
	var f Fields
	var dropped map[FieldName]error
	for key, v := range raw {
		if key == string(FieldUserID) {
			continue
		}
		if IsKnownField(key) {
			if err := f.set(FieldName(key), v); err != nil {
				if dropped == nil {
					dropped = make(map[FieldName]error)
				}
				dropped[FieldName(key)] = err
			}
			continue
		}
		if v == nil {
			continue
		}
		s, err := coerceString(v)
		if err != nil {
			b, _ := json.Marshal(v)
			s = string(b)
		}
		if f.Extra == nil {
			f.Extra = make(map[string]string)
		}
		f.Extra[key] = s
	}
	return f, dropped
}

// set coerces v into the named slot. A nil v marks the slot declined.
func (f *Fields) set(name FieldName, v any) error {
	if v == nil {
		switch name {
		case FieldTicker:
			f.Ticker = Declined[string]()
		case FieldPnL:
			f.PnL = Declined[decimal.Decimal]()
		case FieldPositionType:
			f.PositionType = Declined[string]()
		case FieldEntryTimestamp:
			f.EntryTimestamp = Declined[time.Time]()
		case FieldExitTimestamp:
			f.ExitTimestamp = Declined[time.Time]()
		case FieldNotes:
			f.Notes = Declined[string]()
		}
		return nil
	}
	switch name {
	case FieldTicker:
		s, err := coerceString(v)
		if err != nil {
			return err
		}
		f.Ticker = Some(strings.ToUpper(strings.TrimSpace(s)))
	case FieldPositionType:
		s, err := coerceString(v)
		if err != nil {
			return err
		}
		f.PositionType = Some(strings.TrimSpace(s))
	case FieldNotes:
		s, err := coerceString(v)
		if err != nil {
			return err
		}
		f.Notes = Some(s)
	case FieldPnL:
		d, err := coercePnL(v)
		if err != nil {
			return err
		}
		f.PnL = Some(d)
	case FieldEntryTimestamp:
		t, err := coerceTime(v)
		if err != nil {
			return err
		}
		f.EntryTimestamp = Some(t)
	case FieldExitTimestamp:
		t, err := coerceTime(v)
		if err != nil {
			return err
		}
		f.ExitTimestamp = Some(t)
	default:
		return fmt.Errorf("unknown field %q", name)
	}
	return nil
}

// MarshalJSON writes present slots as values, declined slots as null, and
// omits unset slots.
func (f Fields) MarshalJSON() ([]byte, error) {
	out := make(map[string]any)
	for _, name := range KnownFields {
		if f.IsDeclined(name) {
			out[string(name)] = nil
			continue
		}
		v, ok := f.Get(name)
		if !ok {
			continue
		}
		if t, isTime := v.(time.Time); isTime {
			v = t.UTC().Format(time.RFC3339)
		}
		out[string(name)] = v
	}
	for k, v := range f.Extra {
		out[k] = v
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the strict inverse of MarshalJSON.
func (f *Fields) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	var out Fields
	for key, v := range raw {
		if IsKnownField(key) {
			if err := out.set(FieldName(key), v); err != nil {
				return fmt.Errorf("field %s: %w", key, err)
			}
			continue
		}
		s, err := coerceString(v)
		if err != nil {
			return fmt.Errorf("field %s: %w", key, err)
		}
		if out.Extra == nil {
			out.Extra = make(map[string]string)
		}
		out.Extra[key] = s
	}
	*f = out
	return nil
}

// Names returns the names of slots carrying information, sorted.
func (f Fields) Names() []string {
	var names []string
	for _, name := range KnownFields {
		if f.Has(name) || f.IsDeclined(name) {
			names = append(names, string(name))
		}
	}
	for k := range f.Extra {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
