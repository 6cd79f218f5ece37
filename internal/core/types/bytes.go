package types

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
)

// Bytes is a byte quantity. It parses human sizes ("25MB", "1.5 GiB") and
// serializes the exact count.
type Bytes uint64

// MarshalText writes the exact byte count; String is for display only.
func (b Bytes) MarshalText() ([]byte, error) {
	return strconv.AppendUint(nil, uint64(b), 10), nil
}

func (b *Bytes) UnmarshalText(data []byte) error {
	return b.Set(string(data))
}

func (b Bytes) String() string {
	return humanize.Bytes(uint64(b))
}

// UnmarshalYAML accepts both plain integers and humanized strings.
func (b *Bytes) UnmarshalYAML(unmarshal func(any) error) error {
	var n uint64
	if err := unmarshal(&n); err == nil {
		*b = Bytes(n)
		return nil
	}
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	if err := b.Set(raw); err != nil {
		return fmt.Errorf("invalid byte string %q: %w", raw, err)
	}
	return nil
}

func (b Bytes) MarshalYAML() (any, error) {
	return uint64(b), nil
}

func (b Bytes) Bytes() uint64 {
	return uint64(b)
}

func (b Bytes) Int64() int64 {
	return int64(b)
}

// MB returns the size in units of 1024*1024 bytes, as the QA reports print it.
func (b Bytes) MB() float64 {
	return float64(b) / (1024 * 1024)
}

// Set parses a humanized size. It also satisfies kong's flag mapper.
func (b *Bytes) Set(value string) error {
	parsed, err := humanize.ParseBytes(value)
	if err != nil {
		return err
	}
	*b = Bytes(parsed)
	return nil
}
