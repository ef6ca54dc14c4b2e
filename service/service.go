// Package service wires the Framed Stream Listener to a Dispatcher,
// the daemon side of the §6 external interface. It is the direct
// analogue of the teacher's service.Service, which wired a gRPC server
// to a job.Tracker; here there is no RPC framework, so the wiring is
// just "accept a connection, hand it to Dispatcher.HandleConn".
package service

import (
	"fmt"
	"os"
	"os/user"

	"github.com/sirupsen/logrus"

	"github.com/shell-compose/shellcompose/dispatcher"
	"github.com/shell-compose/shellcompose/ipc"
	"github.com/shell-compose/shellcompose/recipe"
)

// SocketPath computes the default socket path named in §6:
// "$TMPDIR/shell-compose-<user>.sock", TMPDIR defaulting to /tmp.
func SocketPath() string {
	dir := os.Getenv("TMPDIR")
	if dir == "" {
		dir = "/tmp"
	}
	name := "unknown"
	if u, err := user.Current(); err == nil && u.Username != "" {
		name = u.Username
	}
	return fmt.Sprintf("%s/shell-compose-%s.sock", dir, name)
}

// Serve builds a Dispatcher and runs the Listener accept loop on
// socketPath until Exit is requested, which calls exitFn (typically
// os.Exit). It blocks for the life of the daemon.
func Serve(socketPath string, log *logrus.Entry, recipeArgv []string, exitFn func(code int)) error {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if exitFn == nil {
		exitFn = os.Exit
	}

	var recipeExe string
	if len(recipeArgv) > 0 {
		recipeExe = recipeArgv[0]
	}
	var recipes recipe.Recipes = recipe.Just{Exe: recipeExe}

	d := dispatcher.New(log, recipes, recipeArgv, func() { exitFn(0) })

	onAcceptError := func(err error) {
		log.WithError(err).Warn("accept error")
	}

	log.WithField("socket", socketPath).Info("listening")
	return ipc.Listen(socketPath, d.HandleConn, onAcceptError)
}
