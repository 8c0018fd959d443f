package v4

import (
	"encoding/binary"
	"fmt"
	"time"
)

// This option implements the Renewal (T1) Time Value option
// https://tools.ietf.org/html/rfc2132#section-9.11

// OptRenewalTime represents the Renewal (T1) Time Value option.
type OptRenewalTime struct {
	RenewalTime uint32
}

// ParseOptRenewalTime constructs an OptRenewalTime struct from the value
// of an option and returns it, or an error.
func ParseOptRenewalTime(data []byte) (*OptRenewalTime, error) {
	if len(data) != 4 {
		return nil, fmt.Errorf("%v: expected length 4, got %v instead", OptionRenewTimeValue, len(data))
	}
	return &OptRenewalTime{RenewalTime: binary.BigEndian.Uint32(data)}, nil
}

// Code returns the option code.
func (o *OptRenewalTime) Code() OptionCode {
	return OptionRenewTimeValue
}

// Option returns the option in its wire representation.
func (o *OptRenewalTime) Option() Option {
	value := make([]byte, o.Length())
	binary.BigEndian.PutUint32(value, o.RenewalTime)
	return Option{Code: o.Code(), Data: value}
}

func (o *OptRenewalTime) Duration() time.Duration {
	return time.Duration(o.RenewalTime) * time.Second
}

// Length returns the length of the data portion.
func (o *OptRenewalTime) Length() int {
	return 4
}
