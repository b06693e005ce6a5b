package editsync

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/golang/glog"

	gojwt "github.com/golang-jwt/jwt/v5"

	"github.com/editmirror/editmirror/protocol"
)

const TransportBufferSize = 32

func DefaultMirrorTransportSettings() *MirrorTransportSettings {
	return &MirrorTransportSettings{
		WsHandshakeTimeout: 2 * time.Second,
		AuthTimeout:        2 * time.Second,
		ReconnectTimeout:   5 * time.Second,
		PingTimeout:        1 * time.Second,
		WriteTimeout:       5 * time.Second,
	}
}

type MirrorTransportSettings struct {
	WsHandshakeTimeout time.Duration
	AuthTimeout        time.Duration
	ReconnectTimeout   time.Duration
	PingTimeout        time.Duration
	WriteTimeout       time.Duration
}

// RuntimeAuth identifies this host instance to the mirror runtime.
type RuntimeAuth struct {
	ByJwt       string
	InstanceId  Id
	HostVersion string
}

// the jwt is parsed unverified on the host side; verification is the
// runtime's job
func (self *RuntimeAuth) RuntimeId() (Id, error) {
	parser := gojwt.NewParser()
	token, _, err := parser.ParseUnverified(self.ByJwt, gojwt.MapClaims{})
	if err != nil {
		return Id{}, err
	}

	claims := token.Claims.(gojwt.MapClaims)
	if runtimeIdStr, ok := claims["runtime_id"]; ok {
		if runtimeId, err := ParseId(runtimeIdStr.(string)); err == nil {
			return runtimeId, nil
		}
	}
	return Id{}, fmt.Errorf("missing runtime_id claim")
}

// MirrorTransport delivers delta frames to the mirror runtime over a
// websocket. Delivery is fire and forget: SendDelta enqueues and
// returns; a full queue or a closed transport is a delivery failure
// reported to the caller, never retried here.
type MirrorTransport struct {
	ctx    context.Context
	cancel context.CancelFunc

	runtimeUrl string
	auth       *RuntimeAuth

	settings *MirrorTransportSettings

	send chan []byte

	stateMonitor *Monitor
	mutex        sync.Mutex
	connected    bool
}

func NewMirrorTransportWithDefaults(
	ctx context.Context,
	runtimeUrl string,
	auth *RuntimeAuth,
) *MirrorTransport {
	return NewMirrorTransport(ctx, runtimeUrl, auth, DefaultMirrorTransportSettings())
}

func NewMirrorTransport(
	ctx context.Context,
	runtimeUrl string,
	auth *RuntimeAuth,
	settings *MirrorTransportSettings,
) *MirrorTransport {
	cancelCtx, cancel := context.WithCancel(ctx)
	transport := &MirrorTransport{
		ctx:          cancelCtx,
		cancel:       cancel,
		runtimeUrl:   runtimeUrl,
		auth:         auth,
		settings:     settings,
		send:         make(chan []byte, TransportBufferSize),
		stateMonitor: NewMonitor(),
	}
	go transport.run()
	return transport
}

func (self *MirrorTransport) run() {
	defer self.cancel()

	runtimeId, _ := self.auth.RuntimeId()

	authBytes, err := protocol.EncodeFrame(&protocol.Auth{
		ByJwt:       self.auth.ByJwt,
		HostVersion: self.auth.HostVersion,
		InstanceId:  self.auth.InstanceId.Bytes(),
	})
	if err != nil {
		return
	}

	for {
		connect := func() (*websocket.Conn, error) {
			dialer := &websocket.Dialer{
				HandshakeTimeout: self.settings.WsHandshakeTimeout,
			}
			ws, _, err := dialer.DialContext(self.ctx, self.runtimeUrl, nil)
			if err != nil {
				return nil, err
			}

			success := false
			defer func() {
				if !success {
					ws.Close()
				}
			}()

			ws.SetWriteDeadline(time.Now().Add(self.settings.AuthTimeout))
			if err := ws.WriteMessage(websocket.BinaryMessage, authBytes); err != nil {
				return nil, err
			}
			ws.SetReadDeadline(time.Now().Add(self.settings.AuthTimeout))
			if messageType, message, err := ws.ReadMessage(); err != nil {
				return nil, err
			} else {
				// verify the auth echo
				switch messageType {
				case websocket.BinaryMessage:
					if !bytes.Equal(authBytes, message) {
						return nil, fmt.Errorf("auth response error: bad bytes")
					}
				default:
					return nil, fmt.Errorf("auth response error")
				}
			}

			success = true
			return ws, nil
		}

		ws, err := connect()
		if err != nil {
			glog.Infof("[mt]auth error %s = %s\n", runtimeId, err)
			select {
			case <-self.ctx.Done():
				return
			case <-time.After(self.settings.ReconnectTimeout):
				continue
			}
		}

		self.setConnected(true)
		func() {
			defer ws.Close()
			defer self.setConnected(false)

			for {
				select {
				case <-self.ctx.Done():
					return
				case message, ok := <-self.send:
					if !ok {
						return
					}

					ws.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
					if err := ws.WriteMessage(websocket.BinaryMessage, message); err != nil {
						// a websocket deadline timeout cannot be recovered
						glog.Infof("[mt]%s-> error = %s\n", runtimeId, err)
						return
					}
					glog.V(2).Infof("[mt]%s->\n", runtimeId)
				case <-time.After(self.settings.PingTimeout):
					ws.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
					if err := ws.WriteMessage(websocket.BinaryMessage, make([]byte, 0)); err != nil {
						return
					}
				}
			}
		}()

		select {
		case <-self.ctx.Done():
			return
		case <-time.After(self.settings.ReconnectTimeout):
		}
	}
}

func (self *MirrorTransport) setConnected(connected bool) {
	self.mutex.Lock()
	changed := self.connected != connected
	self.connected = connected
	self.mutex.Unlock()
	if changed {
		self.stateMonitor.NotifyAll()
	}
}

func (self *MirrorTransport) IsConnected() bool {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.connected
}

// notified on connect and disconnect
func (self *MirrorTransport) StateMonitor() *Monitor {
	return self.stateMonitor
}

// DeltaSender
func (self *MirrorTransport) SendDelta(delta *Delta) error {
	wireDelta := DeltaToWire(delta)
	if wireDelta == nil {
		return nil
	}
	b, err := protocol.EncodeFrame(wireDelta)
	if err != nil {
		return err
	}
	select {
	case <-self.ctx.Done():
		return fmt.Errorf("transport closed")
	case self.send <- b:
		return nil
	default:
		return fmt.Errorf("transport send queue full")
	}
}

func (self *MirrorTransport) Close() {
	self.cancel()
}
