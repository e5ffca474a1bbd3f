package model

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// User identifies the author of a moment.
type User struct {
	ID          int    `json:"userId"`
	Nickname    string `json:"nickname"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Birthdate   string `json:"birthdate,omitempty"`
}

// ByteArray is an encoded image carried as a JSON array of numbers
// ([255,216,...]) rather than Go's default base64 string.
type ByteArray []byte

func (b ByteArray) MarshalJSON() ([]byte, error) {
	if b == nil {
		return []byte("[]"), nil
	}
	var buf bytes.Buffer
	buf.Grow(len(b)*4 + 2)
	buf.WriteByte('[')
	for i, v := range b {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Itoa(int(v)))
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts a number array, a base64 string, or null.
func (b *ByteArray) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case bytes.Equal(trimmed, []byte("null")):
		*b = nil
		return nil
	case len(trimmed) > 0 && trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		raw, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return fmt.Errorf("byte array: %w", err)
		}
		*b = raw
		return nil
	}

	var nums []int
	if err := json.Unmarshal(trimmed, &nums); err != nil {
		return fmt.Errorf("byte array: %w", err)
	}
	out := make([]byte, len(nums))
	for i, n := range nums {
		if n < 0 || n > 255 {
			return fmt.Errorf("byte array: value %d at index %d out of range", n, i)
		}
		out[i] = byte(n)
	}
	*b = out
	return nil
}

// MomentInput is the upload body for a new moment.
type MomentInput struct {
	User       User      `json:"user"`
	FrontPhoto ByteArray `json:"frontPhoto"`
	BackPhoto  ByteArray `json:"backPhoto"`
	Location   string    `json:"location"`
}

var ErrInvalidMoment = errors.New("invalid moment")

// Validate checks the fields the feed requires.
func (in MomentInput) Validate() error {
	var problems []string
	if in.User.ID <= 0 && strings.TrimSpace(in.User.Nickname) == "" {
		problems = append(problems, "user is required")
	}
	if len(in.FrontPhoto) == 0 {
		problems = append(problems, "frontPhoto is empty")
	}
	if len(in.BackPhoto) == 0 {
		problems = append(problems, "backPhoto is empty")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidMoment, strings.Join(problems, ", "))
	}
	return nil
}

// Moment is one post of the feed: a front and a back photo taken together.
type Moment struct {
	ID          int64     `json:"beRealId"`
	User        User      `json:"user"`
	FrontPhoto  ByteArray `json:"frontPhoto"`
	BackPhoto   ByteArray `json:"backPhoto"`
	Location    string    `json:"location,omitempty"`
	DateCreated time.Time `json:"dateCreated"`
}
