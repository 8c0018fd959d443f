package v4

import (
	"encoding/binary"
	"fmt"
	"time"
)

// This option implements the Rebinding (T2) Time Value option
// https://tools.ietf.org/html/rfc2132#section-9.12

// OptRebindingTime represents the Rebinding (T2) Time Value option.
type OptRebindingTime struct {
	RebindingTime uint32
}

// ParseOptRebindingTime constructs an OptRebindingTime struct from the value
// of an option and returns it, or an error.
func ParseOptRebindingTime(data []byte) (*OptRebindingTime, error) {
	if len(data) != 4 {
		return nil, fmt.Errorf("%v: expected length 4, got %v instead", OptionRebindingTimeValue, len(data))
	}
	return &OptRebindingTime{RebindingTime: binary.BigEndian.Uint32(data)}, nil
}

// Code returns the option code.
func (o *OptRebindingTime) Code() OptionCode {
	return OptionRebindingTimeValue
}

// Option returns the option in its wire representation.
func (o *OptRebindingTime) Option() Option {
	value := make([]byte, o.Length())
	binary.BigEndian.PutUint32(value, o.RebindingTime)
	return Option{Code: o.Code(), Data: value}
}

func (o *OptRebindingTime) Duration() time.Duration {
	return time.Duration(o.RebindingTime) * time.Second
}

// Length returns the length of the data portion.
func (o *OptRebindingTime) Length() int {
	return 4
}
