package ipc

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func pipeConns(t *testing.T) (*Conn, *Conn) {
	t.Helper()
	a, b := net.Pipe()
	return NewConn(a), NewConn(b)
}

func roundTrip(t *testing.T, msg Message) Message {
	t.Helper()
	client, server := pipeConns(t)
	defer client.Close()
	defer server.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- client.WriteMessage(msg) }()

	got, err := server.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, <-errCh)
	return got
}

func TestRoundTripEveryVariant(t *testing.T) {
	filter := uint32(7)
	cases := map[string]Message{
		"connect":      Connect(),
		"exec-run":     {Kind: KindExecRun, Args: []string{"sh", "-c", "echo hi"}},
		"exec-runat":   {Kind: KindExecRunat, CronExpr: "* * * * * *", Args: []string{"sh", "-c", "echo tick"}},
		"exec-start":   {Kind: KindExecStart, Service: "web"},
		"exec-up":      {Kind: KindExecUp, Group: "backend"},
		"cli-stop":     {Kind: KindCliStop, JobID: 3},
		"cli-down":     {Kind: KindCliDown, Group: "backend"},
		"cli-ps":       {Kind: KindCliPs},
		"cli-jobs":     {Kind: KindCliJobs},
		"cli-logs":     {Kind: KindCliLogs, HasLogFilter: true, LogFilter: filter},
		"cli-logs-all": {Kind: KindCliLogs},
		"cli-exit":     {Kind: KindCliExit},
		"ok":           Ok(),
		"err":          Err("boom"),
		"jobs-started": JobsStarted([]uint32{1, 2, 3}),
		"ps-info": {Kind: KindPsInfo, Procs: []ProcInfo{
			{JobID: 1, Pid: 100, Args: []string{"sh"}, State: "running", StartNanos: 123},
		}},
		"job-info": {Kind: KindJobInfo, Jobs: []Job{
			{JobID: 1, Kind: "shell", Args: []string{"sh"}, RestartPolicy: "never"},
		}},
		"log-line": {Kind: KindLogLine, Log: &LogLine{Nanos: 42, JobID: 1, Pid: 100, Line: "hi"}},
	}

	for name, msg := range cases {
		msg := msg
		t.Run(name, func(t *testing.T) {
			got := roundTrip(t, msg)
			require.Equal(t, msg, got)
		})
	}
}

func TestFrameRejectsOversizeLength(t *testing.T) {
	client, server := pipeConns(t)
	defer client.Close()
	defer server.Close()

	go func() {
		hdr := []byte{0xff, 0xff, 0xff, 0xff}
		_, _ = client.nc.Write(hdr)
	}()

	_, err := server.ReadMessage()
	require.Error(t, err)
}
