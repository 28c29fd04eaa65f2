package speech

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"talkback/log"
)

// resultMessage accepts both the flat {"transcript","is_final"} shape and
// Deepgram's streaming result shape.
type resultMessage struct {
	Type        string `json:"type"`
	Transcript  string `json:"transcript"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func (m resultMessage) text() string {
	if m.Transcript != "" {
		return m.Transcript
	}
	if len(m.Channel.Alternatives) > 0 {
		return m.Channel.Alternatives[0].Transcript
	}
	return ""
}

// Remote reads recognized text from a speech service over a WebSocket.
// Only final results are committed, so the live text never shrinks.
type Remote struct {
	url    string
	dialer *websocket.Dialer

	mu         sync.Mutex
	conn       *websocket.Conn
	committed  string
	active     bool
	continuous bool
	closing    bool
	err        error
	updates    chan string
}

func NewRemote(url string) *Remote {
	return &Remote{
		url:     url,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		updates: make(chan string, 16),
	}
}

func (r *Remote) Name() string { return "remote" }

func (r *Remote) Start(continuous bool) error {
	r.mu.Lock()
	if r.conn != nil {
		r.active = true
		r.continuous = continuous
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	conn, _, err := r.dialer.Dial(r.url, nil)
	if err != nil {
		return fmt.Errorf("dial speech service %s: %w", r.url, err)
	}

	r.mu.Lock()
	r.conn = conn
	r.active = true
	r.continuous = continuous
	r.closing = false
	r.err = nil
	r.mu.Unlock()

	go r.runReceiver(conn)
	return nil
}

func (r *Remote) Stop() error {
	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.active = false
	r.closing = true
	r.mu.Unlock()

	if conn == nil {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return conn.Close()
}

func (r *Remote) Reset() {
	r.mu.Lock()
	r.committed = ""
	r.mu.Unlock()
	r.notify("")
}

func (r *Remote) LiveText() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.committed
}

func (r *Remote) IsActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Err returns the error that ended the last connection, if any.
func (r *Remote) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Remote) Updates() <-chan string { return r.updates }

func (r *Remote) runReceiver(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			r.mu.Lock()
			closing := r.closing
			if r.conn == conn {
				r.conn = nil
				r.active = false
				if !closing {
					r.err = err
				}
			}
			r.mu.Unlock()
			if !closing && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnf("speech feed closed: %v", err)
			}
			return
		}

		var msg resultMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warnf("speech feed: bad message: %v", err)
			continue
		}
		if !msg.IsFinal && !msg.SpeechFinal {
			continue
		}
		phrase := strings.TrimSpace(msg.text())
		if phrase == "" {
			continue
		}

		r.mu.Lock()
		if !r.active {
			r.mu.Unlock()
			continue
		}
		r.committed = joinFinal(r.committed, phrase)
		fullText := r.committed
		if !r.continuous {
			r.active = false
		}
		r.mu.Unlock()

		r.notify(fullText)
	}
}

func (r *Remote) notify(text string) {
	select {
	case r.updates <- text:
	default:
	}
}
