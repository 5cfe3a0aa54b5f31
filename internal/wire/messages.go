package wire

import (
	"fmt"
	"strconv"
	"strings"
)

// Message type and command identifiers shared by both ends of the link.
const (
	TypeCameraConn = "cameraConn"

	CommandStartLive = "startLive"
	CommandStopLive  = "stopLive"
	CommandCloseConn = "closeConn"
)

// Location is a camera's fixed position.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// DirName renders the location the way frame directories are named,
// e.g. "32.0_34.0". Integral coordinates keep a trailing ".0" so the
// directory name always parses back into two floats.
func (l Location) DirName() string {
	return coord(l.Lat) + "_" + coord(l.Lng)
}

// ParseDirName is the inverse of DirName.
func ParseDirName(name string) (Location, error) {
	parts := strings.SplitN(name, "_", 2)
	if len(parts) != 2 {
		return Location{}, fmt.Errorf("malformed location dir %q", name)
	}
	lat, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return Location{}, fmt.Errorf("malformed latitude in %q: %w", name, err)
	}
	lng, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return Location{}, fmt.Errorf("malformed longitude in %q: %w", name, err)
	}
	return Location{Lat: lat, Lng: lng}, nil
}

func coord(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// Handshake is the first message a camera sends on the main channel.
type Handshake struct {
	Type     string   `json:"type"`
	Location Location `json:"location"`
}

// HandshakeAck is the server's reply to a Handshake.
type HandshakeAck struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
}

// FramePayload carries one captured frame on the main or live channel.
type FramePayload struct {
	Frame string `json:"frame"` // base64 JPEG
	Time  string `json:"time"`  // FrameTimeLayout
}

// FrameTimeLayout is the capture-timestamp format used in frame
// messages and in persisted frame filenames.
const FrameTimeLayout = "20060102_150405"

// Command is a server-to-camera control message on the main channel.
type Command struct {
	Command string `json:"command"`
}

// LiveHello identifies the camera on a freshly opened live channel.
type LiveHello struct {
	ID string `json:"id"`
}

// DiscoveryPacket is the unframed UDP heartbeat a camera broadcasts
// while it has no server connection.
type DiscoveryPacket struct {
	Type     string   `json:"type"`
	Host     string   `json:"host"`
	Port     int      `json:"port"`
	Location Location `json:"location"`
}
