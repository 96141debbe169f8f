// Package comm is the UDP boundary to Affetto's real-time controller.
//
// Datagrams carry ASCII decimal integers separated by single spaces.
// A sensor payload holds three values per joint in joint-index order
// (q0 pa0 pb0 q1 pa1 pb1 ...); a command payload holds all channel-A
// pressures followed by all channel-B pressures. Joint ordering is the
// chain model's and is the wire contract with the robot.
package comm

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DefaultBufSize bounds a received datagram.
const DefaultBufSize = 4096

// ParseSensorData decodes a sensor payload for dof joints.
func ParseSensorData(payload []byte, dof int) ([]float64, error) {
	fields := strings.Fields(string(payload))
	if len(fields) != 3*dof {
		return nil, fmt.Errorf("comm: sensor datagram has %d fields, want %d", len(fields), 3*dof)
	}
	data := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("comm: bad sensor field %d %q: %w", i, f, err)
		}
		data[i] = float64(v)
	}
	return data, nil
}

// EncodeCommands encodes the per-joint channel pressures into a command
// payload. Values are rounded to the nearest integer.
func EncodeCommands(ca, cb []float64) []byte {
	var b strings.Builder
	for i, v := range ca {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.Itoa(int(math.Round(v))))
	}
	for _, v := range cb {
		b.WriteByte(' ')
		b.WriteString(strconv.Itoa(int(math.Round(v))))
	}
	return []byte(b.String())
}
