package messages

import "github.com/bytedance/sonic"

// Device message types
const (
	TypeText = "text"
)

// DeviceMessage is sent by the coordinator to a connected device
type DeviceMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// NewTextMessage creates a recognized-text message for a device
func NewTextMessage(content string) *DeviceMessage {
	return &DeviceMessage{
		Type:    TypeText,
		Content: content,
	}
}

// Marshal encodes the device message as JSON
func (m *DeviceMessage) Marshal() ([]byte, error) {
	return sonic.Marshal(m)
}

// ParseDeviceMessage decodes a device message
func ParseDeviceMessage(data []byte) (*DeviceMessage, error) {
	var msg DeviceMessage
	if err := sonic.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
