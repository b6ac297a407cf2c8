package enums

import "fmt"

// OrderChannel tags where an order originated. Chat is a trusted channel:
// it is allowed to carry a pre-resolved unit price into the order builder.
type OrderChannel string

const (
	OrderChannelWeb  OrderChannel = "web"
	OrderChannelChat OrderChannel = "chat"
)

var validOrderChannels = []OrderChannel{
	OrderChannelWeb,
	OrderChannelChat,
}

// String implements fmt.Stringer.
func (o OrderChannel) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderChannel.
func (o OrderChannel) IsValid() bool {
	for _, candidate := range validOrderChannels {
		if candidate == o {
			return true
		}
	}
	return false
}

// IsTrusted reports whether the channel may pass pre-resolved prices.
func (o OrderChannel) IsTrusted() bool {
	return o == OrderChannelChat
}

// ParseOrderChannel converts raw input into an OrderChannel.
func ParseOrderChannel(value string) (OrderChannel, error) {
	for _, candidate := range validOrderChannels {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order channel %q", value)
}
