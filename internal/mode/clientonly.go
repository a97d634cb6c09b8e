package mode

import (
	"bytes"
	"context"
	"fmt"

	"go.uber.org/zap"

	"go.wardproxy.dev/ward/internal/actor"
	"go.wardproxy.dev/ward/internal/conn"
	"go.wardproxy.dev/ward/internal/wire"
)

// Login-state packet IDs, client<->proxy direction.
const (
	packetEncryptionRequest  int32 = 0x01
	packetLoginSuccess       int32 = 0x02
	packetSetCompression     int32 = 0x03
	packetEncryptionResponse int32 = 0x01
	packetLoginAcknowledged  int32 = 0x03
)

// serverReady is handed from the server half to the client half once the
// backend has completed its own offline-mode login and reported a
// compression threshold; it unblocks the client half's AwaitServerReady
// and AwaitThreshold states.
type serverReady struct {
	threshold int
}

// loginAcknowledged is handed from the client half to the server half once
// the client has read its own login-acknowledge packet, the AwaitLoginAck
// state's exit condition.
type loginAcknowledged struct{}

// AuthenticatedProfile is what a successful client-only handshake yields:
// the Mojang-verified identity the proxy now vouches for to the backend.
type AuthenticatedProfile struct {
	Username string
	UUID     string
	Response *HasJoinedResponse
}

// ClientOnlyHandler terminates Mojang online-mode authentication at the
// proxy: it performs the full encryption handshake against the client,
// verifies the session with Mojang's session server, and only then joins
// the already-dialed (offline-mode) backend connection to the relay loop.
type ClientOnlyHandler struct {
	// Username is the name the client sent in its LoginStart packet,
	// captured by the gateway before the actor pair was constructed.
	Username string

	// OnAuthenticated, if set, is called once the session server confirms
	// the client's identity, before LoginSuccess is sent.
	OnAuthenticated func(AuthenticatedProfile)

	// keys is populated lazily so tests can inject a fixed pair; production
	// callers leave it nil and GenerateKeyPair runs per connection.
	keys *KeyPair
}

var _ actor.Handler = (*ClientOnlyHandler)(nil)

// ClientLoop blocks in AwaitServerReady until the server half reports the
// backend-negotiated compression threshold, then runs the eight-step
// authentication sequence before joining the ordinary relay loop.
func (h *ClientOnlyHandler) ClientLoop(ctx context.Context, p *actor.Pair) error {
	ready, err := awaitServerReady(ctx, p.ToClient)
	if err != nil {
		zap.L().Warn("mode: client-only never received server-ready",
			zap.String("session", p.SessionLabel), zap.Error(err))
		return err
	}

	if err := h.authenticate(ctx, p, ready.threshold); err != nil {
		zap.L().Warn("mode: client-only authentication failed",
			zap.String("session", p.SessionLabel), zap.String("username", h.Username), zap.Error(err))
		return err
	}
	return duplex(ctx, p, p.ClientConn, p.ToServer, p.ToClient)
}

// ServerLoop performs the backend's side of the rendezvous: read the
// set-compression and login-success packets the gateway's replayed
// handshake+login-start provoked, forward the negotiated threshold to the
// client half, then wait for its login-acknowledge before joining the
// ordinary relay loop.
func (h *ClientOnlyHandler) ServerLoop(ctx context.Context, p *actor.Pair) error {
	threshold, err := readBackendLoginResponse(p.ServerConn)
	if err != nil {
		return fmt.Errorf("mode: read backend login response: %w", err)
	}

	select {
	case p.ToClient <- actor.Msg{Kind: actor.MsgCustom, Custom: serverReady{threshold: threshold}}:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := awaitLoginAcknowledged(ctx, p.ToServer); err != nil {
		return err
	}

	return duplexWithIdleCheck(ctx, p, p.ServerConn, p.ToClient, p.ToServer)
}

// awaitServerReady blocks for the server half's rendezvous signal, ignoring
// nothing else — no other traffic is expected on this channel before the
// client half has even started authenticating.
func awaitServerReady(ctx context.Context, in <-chan actor.Msg) (serverReady, error) {
	select {
	case msg, ok := <-in:
		if !ok {
			return serverReady{}, fmt.Errorf("mode: server half channel closed before server-ready")
		}
		ready, ok := msg.Custom.(serverReady)
		if !ok {
			return serverReady{}, fmt.Errorf("mode: expected server-ready, got %#v", msg)
		}
		return ready, nil
	case <-ctx.Done():
		return serverReady{}, ctx.Err()
	}
}

// awaitLoginAcknowledged blocks for the client half's login-acknowledge
// relay, the server half's AwaitLoginAck exit condition.
func awaitLoginAcknowledged(ctx context.Context, in <-chan actor.Msg) error {
	select {
	case msg, ok := <-in:
		if !ok {
			return fmt.Errorf("mode: client half channel closed before login-acknowledge")
		}
		if _, ok := msg.Custom.(loginAcknowledged); !ok {
			return fmt.Errorf("mode: expected login-acknowledge, got %#v", msg)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// readBackendLoginResponse reads the backend's set-compression and
// login-success packets (sent in reply to the gateway's replayed handshake
// and login-start), enabling compression on c at the reported threshold.
func readBackendLoginResponse(c *conn.Connection) (int, error) {
	rv, err := c.Read()
	if err != nil {
		return 0, fmt.Errorf("read set-compression: %w", err)
	}
	if rv.Kind != conn.ReadPacket || rv.Packet.ID != packetSetCompression {
		return 0, fmt.Errorf("expected set-compression, got kind=%d id=%d", rv.Kind, rv.Packet.ID)
	}
	threshold, err := wire.ReadVarInt(bytes.NewReader(rv.Packet.Data))
	if err != nil {
		return 0, fmt.Errorf("read compression threshold: %w", err)
	}
	c.EnableCompression(int(threshold))

	rv2, err := c.Read()
	if err != nil {
		return 0, fmt.Errorf("read login-success: %w", err)
	}
	if rv2.Kind != conn.ReadPacket || rv2.Packet.ID != packetLoginSuccess {
		return 0, fmt.Errorf("expected login-success, got kind=%d id=%d", rv2.Kind, rv2.Packet.ID)
	}
	return int(threshold), nil
}

// authenticate runs the eight-step sequence: announce the backend-negotiated
// compression threshold, issue an encryption request, receive and validate
// the client's response, switch the connection to encrypted mode, verify
// the session with Mojang, reply with LoginSuccess, and forward the
// client's login-acknowledge to the server half.
func (h *ClientOnlyHandler) authenticate(ctx context.Context, p *actor.Pair, threshold int) error {
	c := p.ClientConn
	keys := h.keys
	if keys == nil {
		var err error
		keys, err = GenerateKeyPair()
		if err != nil {
			return fmt.Errorf("mode: generate key pair: %w", err)
		}
	}

	body := wire.PutVarInt(nil, int32(threshold))
	if err := c.WritePacket(wire.Packet{ID: packetSetCompression, Data: body}); err != nil {
		return fmt.Errorf("mode: send set-compression: %w", err)
	}
	c.EnableCompression(threshold)

	var reqBody []byte
	reqBody = wire.PutString(reqBody, "") // empty serverID, matching Notchian servers
	reqBody = wire.PutByteArray(reqBody, keys.PublicKeyDER())
	reqBody = wire.PutByteArray(reqBody, keys.VerifyToken())
	if err := c.WritePacket(wire.Packet{ID: packetEncryptionRequest, Data: reqBody}); err != nil {
		return fmt.Errorf("mode: send encryption request: %w", err)
	}

	rv, err := c.Read()
	if err != nil {
		return fmt.Errorf("mode: read encryption response: %w", err)
	}
	if rv.Kind != conn.ReadPacket || rv.Packet.ID != packetEncryptionResponse {
		return fmt.Errorf("mode: expected encryption response, got kind=%d id=%d", rv.Kind, rv.Packet.ID)
	}

	r := bytes.NewReader(rv.Packet.Data)
	encryptedSecret, err := wire.ReadByteArray(r)
	if err != nil {
		return fmt.Errorf("mode: read encrypted shared secret: %w", err)
	}
	encryptedToken, err := wire.ReadByteArray(r)
	if err != nil {
		return fmt.Errorf("mode: read encrypted verify token: %w", err)
	}

	if err := keys.VerifyEncryptedToken(encryptedToken); err != nil {
		return err
	}

	sharedSecret, err := keys.DecryptSharedSecret(encryptedSecret)
	if err != nil {
		return fmt.Errorf("mode: decrypt shared secret: %w", err)
	}

	if err := c.EnableEncryption(sharedSecret); err != nil {
		return fmt.Errorf("mode: enable encryption: %w", err)
	}

	serverHash := ServerIDHash("", sharedSecret, keys.PublicKeyDER())
	profile, err := HasJoined(ctx, h.Username, serverHash)
	if err != nil {
		return err
	}
	if profile.Name != h.Username {
		return fmt.Errorf("mode: username-mismatch: client claimed %q, session server returned %q", h.Username, profile.Name)
	}

	formattedUUID, err := FormatUUID(profile.ID)
	if err != nil {
		return fmt.Errorf("mode: format profile uuid: %w", err)
	}

	if h.OnAuthenticated != nil {
		h.OnAuthenticated(AuthenticatedProfile{Username: profile.Name, UUID: formattedUUID, Response: profile})
	}

	var textures []Property
	for _, prop := range profile.Properties {
		if prop.Name == "textures" {
			textures = append(textures, prop)
		}
	}

	var successBody []byte
	successBody = wire.PutString(successBody, formattedUUID)
	successBody = wire.PutString(successBody, profile.Name)
	successBody = wire.PutVarInt(successBody, int32(len(textures)))
	for _, prop := range textures {
		successBody = wire.PutString(successBody, prop.Name)
		successBody = wire.PutString(successBody, prop.Value)
		if prop.Signature != "" {
			successBody = append(successBody, 1)
			successBody = wire.PutString(successBody, prop.Signature)
		} else {
			successBody = append(successBody, 0)
		}
	}
	if err := c.WritePacket(wire.Packet{ID: packetLoginSuccess, Data: successBody}); err != nil {
		return fmt.Errorf("mode: send login success: %w", err)
	}

	rv2, err := c.Read()
	if err != nil {
		return fmt.Errorf("mode: read login-acknowledge: %w", err)
	}
	if rv2.Kind != conn.ReadPacket || rv2.Packet.ID != packetLoginAcknowledged {
		return fmt.Errorf("mode: expected login-acknowledge, got kind=%d id=%d", rv2.Kind, rv2.Packet.ID)
	}

	select {
	case p.ToServer <- actor.Msg{Kind: actor.MsgCustom, Custom: loginAcknowledged{}}:
	case <-ctx.Done():
		return ctx.Err()
	}

	return nil
}
