// Package protocol implements the station's line-oriented ASCII wire protocol.
//
// FrameReader reassembles raw serial bytes into CRLF- or LF-terminated
// frames. Parse classifies one frame into a Message, which is one of a
// closed set of kinds:
//
//	Banner           line containing "Water"; trailing token is the version
//	Fault            ">...FAIL..."
//	ReportFinished   ">...REPORT...FINISHED..." (end of a status dump)
//	Diagnostic       any other ">" line
//	ContainerReading "$C<n> <switch 0/1> <pressure>"
//	ReferenceReading "$RF [<ignored>] <pressure>"
//	PumpReading      "$P<n> <current> <voltage>"
//	ValveReading     "$V<n> <current> <voltage>"
//
// Outbound, the gateway sends PollCommand ("?") and SetCommand lines
// ("SET <id> ON|OFF"), CRLF-terminated by Encode.
package protocol
