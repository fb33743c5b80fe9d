// Package zid provides time-ordered unique identifiers for send records.
// The underlying xid encodes creation time in its leading bytes, so ids sort
// in admission order which keeps storage scans and debugging cheap.
package zid

import (
	"database/sql/driver"
	"time"

	"github.com/rs/xid"
)

type ID struct {
	internal xid.ID
}

func New() ID {
	return ID{internal: xid.New()}
}

func FromString(id string) (ID, error) {
	i, err := xid.FromString(id)
	if err != nil {
		return ID{}, err
	}
	return ID{internal: i}, nil
}

// Time returns the creation time encoded in the id.
func (id ID) Time() time.Time {
	return id.internal.Time()
}

func (id ID) String() string {
	return id.internal.String()
}

func (id ID) IsZero() bool {
	return id.internal.IsZero()
}

func (id ID) Value() (driver.Value, error) {
	return id.internal.Value()
}

func (id *ID) Scan(value interface{}) error {
	return id.internal.Scan(value)
}

func (id ID) MarshalText() ([]byte, error) {
	return id.internal.MarshalText()
}

func (id *ID) UnmarshalText(text []byte) error {
	return id.internal.UnmarshalText(text)
}

func (id ID) MarshalJSON() ([]byte, error) {
	return id.internal.MarshalJSON()
}

func (id *ID) UnmarshalJSON(b []byte) error {
	return id.internal.UnmarshalJSON(b)
}
