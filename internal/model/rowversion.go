package model

import (
	"bytes"
	"database/sql/driver"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrNullVersionToken is returned when a version token column yields NULL.
// Version tokens are assigned by storage on every insert and update, so a
// NULL can only come from the optional side of an outer join.
var ErrNullVersionToken = errors.New("version token is null")

// RowVersion is an opaque, storage-assigned version token used for
// optimistic concurrency. Application code never sets it.
type RowVersion []byte

// String renders the token as upper-case hex with a 0x prefix.
func (v RowVersion) String() string {
	return "0x" + strings.ToUpper(hex.EncodeToString(v))
}

// IsZero reports whether no token has been assigned yet.
func (v RowVersion) IsZero() bool {
	return len(v) == 0
}

// Equal reports whether two tokens are byte-for-byte identical.
func (v RowVersion) Equal(other RowVersion) bool {
	return bytes.Equal(v, other)
}

// Scan implements sql.Scanner. NULL is rejected with ErrNullVersionToken.
func (v *RowVersion) Scan(src any) error {
	switch s := src.(type) {
	case nil:
		return ErrNullVersionToken
	case []byte:
		*v = bytes.Clone(s)
		return nil
	case string:
		*v = RowVersion(s)
		return nil
	default:
		return fmt.Errorf("cannot scan %T into RowVersion", src)
	}
}

// Value implements driver.Valuer.
func (v RowVersion) Value() (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	return []byte(v), nil
}

// MarshalText encodes the token the same way String does.
func (v RowVersion) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText accepts the 0x-prefixed hex form produced by MarshalText.
func (v *RowVersion) UnmarshalText(text []byte) error {
	s := strings.TrimPrefix(strings.TrimPrefix(string(text), "0x"), "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("decode row version: %w", err)
	}
	*v = b
	return nil
}
