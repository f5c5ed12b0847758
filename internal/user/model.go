package user

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)

type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	URL      string `json:"url"`
	Cards    Cards  `json:"cards"`
	Unfilled int    `json:"unfilled"`
}

// Cards is the ordered queue of other users' URLs, stored as a JSONB array.
type Cards []string

// Value implements driver.Valuer.
func (c Cards) Value() (driver.Value, error) {
	if c == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(c))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (c *Cards) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*c = Cards{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cards: unsupported scan type %T", src)
	}

	var urls []string
	if err := json.Unmarshal(raw, &urls); err != nil {
		return fmt.Errorf("cards: %w", err)
	}
	if urls == nil {
		urls = []string{}
	}
	*c = urls
	return nil
}

// MarshalJSON keeps an empty queue as [] on the wire.
func (c Cards) MarshalJSON() ([]byte, error) {
	if c == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(c))
}
