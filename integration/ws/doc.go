// Package ws provides a WebSocket transport for delivery channels,
// built on gorilla/websocket.
//
// The package exposes two pieces: Dialer, which opens named channels
// against a base WebSocket endpoint, and Conn, the per-channel
// connection it returns. Both satisfy the transport interfaces, so a
// pool can manage WebSocket channels without knowing the wire details.
//
// # Configuration
//
// All configuration is handled through the Config struct with
// environment variable mapping:
//
//	type Config struct {
//		BaseURL          string        `env:"WS_BASE_URL,required"`
//		HandshakeTimeout time.Duration `env:"WS_HANDSHAKE_TIMEOUT" envDefault:"10s"`
//		WriteTimeout     time.Duration `env:"WS_WRITE_TIMEOUT" envDefault:"5s"`
//		ProbeTimeout     time.Duration `env:"WS_PROBE_TIMEOUT" envDefault:"5s"`
//		ReadBufferSize   int           `env:"WS_READ_BUFFER_SIZE" envDefault:"1024"`
//		WriteBufferSize  int           `env:"WS_WRITE_BUFFER_SIZE" envDefault:"1024"`
//	}
//
// # Usage Example
//
//	var cfg ws.Config
//	config.MustLoad(&cfg)
//
//	dialer, err := ws.NewDialer(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	ch, err := dialer.Open(ctx, "user:42")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer ch.Close()
//
//	if err := ch.Send(ctx, payload); err != nil {
//		log.Println("send failed:", err)
//	}
//
// # Liveness
//
// Each Conn runs a background read loop that services control frames
// and detects peer close. Probe performs a ping/pong round trip with a
// deadline, which is what health monitors should call.
package ws
