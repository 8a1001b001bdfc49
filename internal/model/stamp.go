package model

import (
	"encoding/json"
	"fmt"
	"time"
)

const stampLayout = "2006-01-02T15:04:05.000Z07:00"

const unsetWire = "0"

// Stamp records when a piece of item state changed. The zero value is unset.
// On the wire an unset stamp is the string "0" and a set stamp is the
// ISO-8601 time of the change.
type Stamp struct {
	raw string
	at  time.Time
}

// ChangedAt returns a stamp set at t.
func ChangedAt(t time.Time) Stamp {
	t = t.UTC()
	return Stamp{raw: t.Format(stampLayout), at: t}
}

// IsSet reports whether the state was changed.
func (s Stamp) IsSet() bool {
	return s.raw != ""
}

// At returns the time of the change. ok is false for unset stamps and for
// legacy values that do not parse as a time.
func (s Stamp) At() (t time.Time, ok bool) {
	if s.raw == "" || s.at.IsZero() {
		return time.Time{}, false
	}
	return s.at, true
}

// String returns the wire form.
func (s Stamp) String() string {
	if s.raw == "" {
		return unsetWire
	}
	return s.raw
}

// ParseStamp converts a wire value into a Stamp. "0" and "" are unset; any
// other text is kept verbatim.
func ParseStamp(v string) Stamp {
	if v == "" || v == unsetWire {
		return Stamp{}
	}
	s := Stamp{raw: v}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		s.at = t
	}
	return s
}

// Equal reports whether both stamps have the same wire form.
func (s Stamp) Equal(o Stamp) bool {
	return s.raw == o.raw
}

// MarshalJSON implements json.Marshaler.
func (s Stamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Stamp) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("stamp must be a string: %w", err)
	}
	*s = ParseStamp(v)
	return nil
}

// ImageRef is an image URL. The wire form may also be {"url": ...} or a list
// of such objects, in which case the first URL wins.
type ImageRef string

// UnmarshalJSON implements json.Unmarshaler.
func (r *ImageRef) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*r = ImageRef(s)
		return nil
	}
	type urlObj struct {
		URL string `json:"url"`
	}
	var obj urlObj
	if err := json.Unmarshal(data, &obj); err == nil {
		*r = ImageRef(obj.URL)
		return nil
	}
	var list []urlObj
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("image must be a string, an object with url or a list of them")
	}
	*r = ""
	for _, o := range list {
		if o.URL != "" {
			*r = ImageRef(o.URL)
			break
		}
	}
	return nil
}
