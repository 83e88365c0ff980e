package main

import (
	"encoding/json"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/websocket"

	"github.com/skyforge/icm20602/icm20602"
)

// imuBroadcaster fans measurement reports out to any number of
// websocket clients as JSON. Slow or dead sockets are dropped on the
// next write; a full message queue drops messages rather than stalling
// the pipeline.
type imuBroadcaster struct {
	sockets   []*websocket.Conn
	socketsMu *sync.Mutex
	messages  chan []byte
}

type wsEnvelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func newIMUBroadcaster() *imuBroadcaster {
	ret := &imuBroadcaster{
		sockets:   make([]*websocket.Conn, 0),
		socketsMu: &sync.Mutex{},
		messages:  make(chan []byte, 1024),
	}
	go ret.writer()
	return ret
}

func (u *imuBroadcaster) PublishAccel(r *icm20602.AccelReport) {
	u.send(wsEnvelope{Type: "accel", Data: r})
}

func (u *imuBroadcaster) PublishGyro(r *icm20602.GyroReport) {
	u.send(wsEnvelope{Type: "gyro", Data: r})
}

func (u *imuBroadcaster) send(env wsEnvelope) {
	msg, err := json.Marshal(env)
	if err != nil {
		log.Errorf("broadcast marshal: %s", err)
		return
	}
	select {
	case u.messages <- msg:
	default:
		// queue full, clients too slow. Drop rather than stall.
	}
}

// handleConnection serves one websocket client until it disconnects.
func (u *imuBroadcaster) handleConnection(conn *websocket.Conn) {
	u.socketsMu.Lock()
	u.sockets = append(u.sockets, conn)
	u.socketsMu.Unlock()
	log.Infof("websocket client connected: %s", conn.Request().RemoteAddr)

	// Block until the client goes away; the writer goroutine owns all
	// sends.
	buf := make([]byte, 64)
	for {
		if _, err := conn.Read(buf); err != nil {
			break
		}
	}
}

func (u *imuBroadcaster) writer() {
	for {
		msg := <-u.messages
		// Send to all.
		p := make([]*websocket.Conn, 0) // Keep a list of the writeable sockets.
		u.socketsMu.Lock()
		for _, sock := range u.sockets {
			err := sock.SetWriteDeadline(time.Now().Add(time.Second))
			_, err2 := sock.Write(msg)
			if err == nil && err2 == nil {
				p = append(p, sock)
			}
		}
		u.sockets = p // Save the list of writeable sockets.
		u.socketsMu.Unlock()
	}
}
