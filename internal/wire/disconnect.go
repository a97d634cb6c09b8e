package wire

import "encoding/json"

// PacketLoginDisconnect is the login-state packet ID a server (or, here,
// the proxy standing in for one) uses to reject a login with a visible
// reason instead of silently dropping the socket.
const PacketLoginDisconnect = 0x00

// chatComponent is the minimal flat-text shape the client's login-state
// disconnect screen accepts; colors/formatting beyond a bare reason aren't
// needed for proxy-level rejections.
type chatComponent struct {
	Text string `json:"text"`
}

// DisconnectPacket builds a login-state disconnect packet carrying reason
// as a plain chat component.
func DisconnectPacket(reason string) (Packet, error) {
	body, err := json.Marshal(chatComponent{Text: reason})
	if err != nil {
		return Packet{}, err
	}
	return Packet{ID: PacketLoginDisconnect, Data: PutString(nil, string(body))}, nil
}
