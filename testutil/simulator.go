package testutil

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/trajstream/codec"
)

// Simulator message types, as numbered on the wire.
const (
	SimVisDataArrive      = 1
	SimVisDataRequest     = 2
	SimVisDataFinish      = 3
	SimVisDataPause       = 4
	SimVisDataResume      = 5
	SimVisDataAbort       = 6
	SimUpdateTimeStep     = 7
	SimUpdateRateParam    = 8
	SimHeartbeatPing      = 10
	SimHeartbeatPong      = 11
	SimTrajectoryFileInfo = 12
	SimGotoSimulationTime = 13
	SimInitTrajectoryFile = 14
	SimConvertTrajectory  = 16
	SimHealthCheckRequest = 17
	SimHealthCheckReply   = 18
	SimErrorMessage       = 19
)

// SimRequest is a message received by FakeSimulator.
type SimRequest struct {
	MsgType     int      `json:"msgType"`
	FileName    string   `json:"fileName"`
	Mode        *int     `json:"mode"`
	FrameNumber *int     `json:"frameNumber"`
	Time        *float64 `json:"time"`
	TimeStep    *float64 `json:"timeStep"`
	ParamName   string   `json:"paramName"`
	ParamValue  *float64 `json:"paramValue"`
	ConnID      string   `json:"connId"`
	TrajType    string   `json:"trajType"`
}

// SimConn is one client connection to FakeSimulator. Hooks use it to send
// arbitrary responses.
type SimConn struct {
	conn   *websocket.Conn
	binary bool
}

// FakeSimulator is a websocket server that plays a fixed trajectory.
type FakeSimulator struct {
	server *httptest.Server
	info   codec.TrajectoryInfo
	frames []codec.Frame

	mu          sync.Mutex
	binary      bool
	ignoreSeeks bool
	onInit      func(c *SimConn, fileName string)
	requests    []SimRequest
	conns       []*websocket.Conn
	received    chan SimRequest
}

// NewFakeSimulator starts a simulator serving info and frames. It is shut
// down when the test ends.
func NewFakeSimulator(t testing.TB, info codec.TrajectoryInfo, frames []codec.Frame) *FakeSimulator {
	t.Helper()
	s := &FakeSimulator{
		info:     info,
		frames:   frames,
		received: make(chan SimRequest, 256),
	}
	upgrader := websocket.Upgrader{
		CheckOrigin: func(_ *http.Request) bool { return true },
	}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("Upgrade error: %v", err)
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()
		s.serve(conn)
	}))
	t.Cleanup(s.Close)
	return s
}

// URL returns the websocket URL of the simulator.
func (s *FakeSimulator) URL() string {
	return "ws" + s.server.URL[4:]
}

// UseBinary switches frame delivery to binary messages.
func (s *FakeSimulator) UseBinary(binary bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.binary = binary
}

// IgnoreSeeks leaves goto-time requests unanswered.
func (s *FakeSimulator) IgnoreSeeks(ignore bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ignoreSeeks = ignore
}

// OnInit runs fn before the trajectory info reply to every initialize or
// convert request.
func (s *FakeSimulator) OnInit(fn func(c *SimConn, fileName string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onInit = fn
}

// Requests returns every message received so far.
func (s *FakeSimulator) Requests() []SimRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SimRequest(nil), s.requests...)
}

// WaitForRequest returns the next received message of msgType.
func (s *FakeSimulator) WaitForRequest(t testing.TB, msgType int, timeout time.Duration) SimRequest {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case req := <-s.received:
			if req.MsgType == msgType {
				return req
			}
		case <-deadline:
			t.Fatalf("timeout waiting for message type %d", msgType)
			return SimRequest{}
		}
	}
}

// DropConnections closes every client connection without a close frame.
func (s *FakeSimulator) DropConnections() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}

// Close shuts the simulator down.
func (s *FakeSimulator) Close() {
	s.DropConnections()
	s.server.Close()
}

func (s *FakeSimulator) serve(conn *websocket.Conn) {
	defer conn.Close()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req SimRequest
		if err := json.Unmarshal(data, &req); err != nil {
			continue
		}

		s.mu.Lock()
		s.requests = append(s.requests, req)
		c := &SimConn{conn: conn, binary: s.binary}
		onInit, ignoreSeeks := s.onInit, s.ignoreSeeks
		s.mu.Unlock()

		select {
		case s.received <- req:
		default:
		}

		if err := s.handle(c, req, onInit, ignoreSeeks); err != nil {
			return
		}
	}
}

func (s *FakeSimulator) handle(c *SimConn, req SimRequest, onInit func(*SimConn, string), ignoreSeeks bool) error {
	switch req.MsgType {
	case SimInitTrajectoryFile, SimConvertTrajectory:
		if onInit != nil {
			onInit(c, req.FileName)
		}
		return c.SendInfo(req.FileName, s.info)

	case SimVisDataRequest:
		if req.FrameNumber != nil {
			for _, f := range s.frames {
				if f.FrameNumber == *req.FrameNumber {
					return c.SendFrames(req.FileName, []codec.Frame{f})
				}
			}
			return nil
		}
		const bundle = 5
		for start := 0; start < len(s.frames); start += bundle {
			end := min(start+bundle, len(s.frames))
			if err := c.SendFrames(req.FileName, s.frames[start:end]); err != nil {
				return err
			}
		}
		return c.SendJSON(map[string]any{"msgType": SimVisDataFinish, "fileName": req.FileName})

	case SimGotoSimulationTime:
		if ignoreSeeks || req.Time == nil {
			return nil
		}
		tol := s.info.TimeTolerance()
		for _, f := range s.frames {
			if math.Abs(f.Time-*req.Time) <= tol {
				return c.SendFrames(req.FileName, []codec.Frame{f})
			}
		}
		return nil

	case SimHealthCheckRequest:
		return c.SendJSON(map[string]any{"msgType": SimHealthCheckReply, "connId": req.ConnID})
	}
	return nil
}

// SendJSON writes v as a text message.
func (c *SimConn) SendJSON(v any) error {
	return c.conn.WriteJSON(v)
}

// SendRaw writes a message of the given websocket type.
func (c *SimConn) SendRaw(messageType int, data []byte) error {
	return c.conn.WriteMessage(messageType, data)
}

// SendInfo writes a trajectory info message for fileName.
func (c *SimConn) SendInfo(fileName string, info codec.TrajectoryInfo) error {
	raw, err := json.Marshal(info)
	if err != nil {
		return err
	}
	msg := map[string]any{}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return err
	}
	msg["msgType"] = SimTrajectoryFileInfo
	msg["fileName"] = fileName
	return c.SendJSON(msg)
}

// SendFrames writes a frame bundle for fileName, binary or JSON according
// to the simulator's mode.
func (c *SimConn) SendFrames(fileName string, frames []codec.Frame) error {
	if c.binary {
		return c.SendRaw(websocket.BinaryMessage, BinaryFrameMessage(fileName, frames))
	}
	return c.SendJSON(JSONFrameMessage(fileName, frames))
}

// JSONFrameMessage builds a JSON frame bundle.
func JSONFrameMessage(fileName string, frames []codec.Frame) codec.VisDataBundle {
	bundle := codec.VisDataBundle{
		MsgType:    SimVisDataArrive,
		FileName:   fileName,
		BundleSize: len(frames),
	}
	if len(frames) > 0 {
		bundle.BundleStart = frames[0].FrameNumber
	}
	for _, f := range frames {
		bundle.BundleData = append(bundle.BundleData, codec.BundleFrame{
			FrameNumber: f.FrameNumber,
			Time:        f.Time,
			Data:        codec.EncodeFlatRecord(f.Agents),
		})
	}
	return bundle
}

// BinaryFrameMessage builds a binary frame bundle: a float32 message type
// and file name length, the file name padded to four bytes, then frames.
func BinaryFrameMessage(fileName string, frames []codec.Frame) []byte {
	payload := codec.EncodeBinaryFrames(frames)
	padded := (len(fileName) + 3) &^ 3
	out := make([]byte, 8+padded+len(payload))
	binary.LittleEndian.PutUint32(out[0:4], math.Float32bits(SimVisDataArrive))
	binary.LittleEndian.PutUint32(out[4:8], math.Float32bits(float32(len(fileName))))
	copy(out[8:], fileName)
	copy(out[8+padded:], payload)
	return out
}
