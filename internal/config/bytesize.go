package config

import "github.com/angelstreet/streamwatch/pkg/bytesize"

// ByteSize holds a byte count read from configuration. Values accept unit
// suffixes ("8MB", "1.5 GB") or a bare number of bytes; the decode hook in
// Load routes string values through UnmarshalText.
type ByteSize int64

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *ByteSize) UnmarshalText(text []byte) error {
	size, err := bytesize.Parse(string(text))
	if err != nil {
		return err
	}
	*b = ByteSize(size)
	return nil
}

// Bytes returns the raw byte count.
func (b ByteSize) Bytes() int64 {
	return int64(b)
}

// String renders the count in human form, picking the largest exact unit.
func (b ByteSize) String() string {
	return bytesize.Format(bytesize.Size(b))
}
