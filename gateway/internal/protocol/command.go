package protocol

import "strings"

// PollCommand asks the device to emit a full status dump.
const PollCommand = "?"

// SetCommand builds the actuator command for id.
func SetCommand(id string, on bool) string {
	state := "OFF"
	if on {
		state = "ON"
	}
	return "SET " + id + " " + state
}

// Encode returns cmd as ASCII bytes terminated by CRLF.
func Encode(cmd string) []byte {
	if strings.HasSuffix(cmd, "\r\n") {
		return []byte(cmd)
	}
	return []byte(strings.TrimRight(cmd, "\r\n") + "\r\n")
}
