// Package ipc implements the Framed Stream and Listener described in
// spec.md §4.1/§4.2/§6: a length-prefixed, self-describing binary
// Message protocol over a local socket. It replaces the teacher's
// gRPC+protobuf transport (job/..., service/..., cli/creds.go in the
// teacher repo) with a raw framed stream, since the spec's listener-
// reclaim, heartbeat-probe, and per-connection-handler requirements do
// not fit gRPC's own accept-loop/HTTP-2-multiplexing model, and mTLS
// auth is explicitly out of scope (single-user filesystem permissions
// only). See DESIGN.md for the dropped-dependency rationale.
package ipc

// Kind discriminates the Message union described in spec.md §6. Every
// Message carries exactly one Kind, which is what makes the wire
// encoding self-describing of its variant.
type Kind uint8

const (
	// KindConnect is the handshake sent first on every new connection,
	// and doubles as the no-payload heartbeat used during log-stream
	// liveness probes (§4.6, §9).
	KindConnect Kind = iota

	// Client -> daemon, ExecCommand variants (§4.3).
	KindExecRun
	KindExecRunat
	KindExecStart
	KindExecUp

	// Client -> daemon, CliCommand variants (§4.3).
	KindCliStop
	KindCliDown
	KindCliPs
	KindCliJobs
	KindCliLogs
	KindCliExit

	// Daemon -> client, terminal/streaming responses (§6).
	KindOk
	KindErr
	KindJobsStarted
	KindPsInfo
	KindJobInfo
	KindLogLine
)

func (k Kind) String() string {
	switch k {
	case KindConnect:
		return "Connect"
	case KindExecRun:
		return "Run"
	case KindExecRunat:
		return "Runat"
	case KindExecStart:
		return "Start"
	case KindExecUp:
		return "Up"
	case KindCliStop:
		return "Stop"
	case KindCliDown:
		return "Down"
	case KindCliPs:
		return "Ps"
	case KindCliJobs:
		return "Jobs"
	case KindCliLogs:
		return "Logs"
	case KindCliExit:
		return "Exit"
	case KindOk:
		return "Ok"
	case KindErr:
		return "Err"
	case KindJobsStarted:
		return "JobsStarted"
	case KindPsInfo:
		return "PsInfo"
	case KindJobInfo:
		return "JobInfo"
	case KindLogLine:
		return "LogLine"
	default:
		return "Unknown"
	}
}

// ProcInfo is the wire representation of runner.ProcInfo.
type ProcInfo struct {
	JobID      uint32   `cbor:"1,keyasint"`
	Pid        uint32   `cbor:"2,keyasint"`
	Args       []string `cbor:"3,keyasint,omitempty"`
	State      string   `cbor:"4,keyasint"`
	ExitCode   int32    `cbor:"5,keyasint,omitempty"`
	Message    string   `cbor:"6,keyasint,omitempty"`
	StartNanos int64    `cbor:"7,keyasint"`
	EndNanos   int64    `cbor:"8,keyasint,omitempty"`
	CPUPercent float64  `cbor:"9,keyasint,omitempty"`
	MemBytes   uint64   `cbor:"10,keyasint,omitempty"`
	VMemBytes  uint64   `cbor:"11,keyasint,omitempty"`
	TotalWrite uint64   `cbor:"12,keyasint,omitempty"`
	WriteBPS   uint64   `cbor:"13,keyasint,omitempty"`
	TotalRead  uint64   `cbor:"14,keyasint,omitempty"`
	ReadBPS    uint64   `cbor:"15,keyasint,omitempty"`
}

// Job is the wire representation of a registered job (job.Info).
type Job struct {
	JobID         uint32   `cbor:"1,keyasint"`
	Kind          string   `cbor:"2,keyasint"`
	CronExpr      string   `cbor:"3,keyasint,omitempty"`
	Service       string   `cbor:"4,keyasint,omitempty"`
	Args          []string `cbor:"5,keyasint,omitempty"`
	RestartPolicy string   `cbor:"6,keyasint"`
	RestartWaitMS uint64   `cbor:"7,keyasint,omitempty"`
}

// LogLine is the wire representation of runner.LogLine.
type LogLine struct {
	Nanos    int64  `cbor:"1,keyasint"`
	JobID    uint32 `cbor:"2,keyasint"`
	Pid      uint32 `cbor:"3,keyasint"`
	Line     string `cbor:"4,keyasint"`
	IsStderr bool   `cbor:"5,keyasint,omitempty"`
}

// Message is the single tagged union carried by the framed stream, per
// §6. Only the fields relevant to Kind are meaningful; the rest are left
// zero and omitted from the wire via "omitempty".
type Message struct {
	Kind Kind `cbor:"0,keyasint"`

	Args     []string `cbor:"1,keyasint,omitempty"` // Run, Runat
	CronExpr string   `cbor:"2,keyasint,omitempty"` // Runat
	Service  string   `cbor:"3,keyasint,omitempty"` // Start
	Group    string   `cbor:"4,keyasint,omitempty"` // Up, Down
	JobID    uint32   `cbor:"5,keyasint,omitempty"` // Stop

	HasLogFilter bool   `cbor:"6,keyasint,omitempty"` // Logs
	LogFilter    uint32 `cbor:"7,keyasint,omitempty"` // Logs, valid iff HasLogFilter

	ErrMsg string   `cbor:"8,keyasint,omitempty"`  // Err
	JobIDs []uint32 `cbor:"9,keyasint,omitempty"`  // JobsStarted
	Procs  []ProcInfo `cbor:"10,keyasint,omitempty"` // PsInfo
	Jobs   []Job      `cbor:"11,keyasint,omitempty"` // JobInfo
	Log    *LogLine   `cbor:"12,keyasint,omitempty"` // LogLine
}

// Connect is the handshake/heartbeat message.
func Connect() Message { return Message{Kind: KindConnect} }

// Ok is the terminal success response for commands with no payload.
func Ok() Message { return Message{Kind: KindOk} }

// Err is the terminal failure response.
func Err(msg string) Message { return Message{Kind: KindErr, ErrMsg: msg} }

// JobsStarted is the terminal response to Run/Runat/Start/Up.
func JobsStarted(ids []uint32) Message {
	return Message{Kind: KindJobsStarted, JobIDs: ids}
}
