// exec.go implements the `exec` action (§4.7): a resource-stripped,
// privilege-dropped subprocess in its own process group (started with a
// single fork; it is not double-forked). Grounded on
// engine/resources/exec.go's getCredential (syscall.Credential via uid/gid
// lookup, refusing to drop privileges unless running as root) and its
// exec.Command + syscall.SysProcAttr{Setpgid: true} pattern.
package action

import (
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"strconv"
	"strings"
	"syscall"

	"github.com/maemo-leste/alarmd/queue"
	"github.com/maemo-leste/alarmd/util/errwrap"
)

// ExecConfig carries the process-wide defaults applied to every exec
// action: the unprivileged user/group to drop to when running as root.
type ExecConfig struct {
	User  string
	Group string
}

// getUID looks up a numeric or named uid, same technique as
// engine/util.GetUID, re-derived here rather than shared since it is small
// enough not to need its own package.
func getUID(name string) (int, error) {
	if n, err := strconv.Atoi(name); err == nil {
		return n, nil
	}
	u, err := user.Lookup(name)
	if err != nil {
		return 0, errwrap.Wrapf(err, "lookup user %s", name)
	}
	return strconv.Atoi(u.Uid)
}

func getGID(name string) (int, error) {
	if n, err := strconv.Atoi(name); err == nil {
		return n, nil
	}
	g, err := user.LookupGroup(name)
	if err != nil {
		return 0, errwrap.Wrapf(err, "lookup group %s", name)
	}
	return strconv.Atoi(g.Gid)
}

// getCredential returns the syscall.Credential to drop to, or nil if the
// process is not running as root (nothing to drop).
func getCredential(cfg ExecConfig) (*syscall.Credential, error) {
	cur, err := user.Current()
	if err != nil {
		return nil, errwrap.Wrapf(err, "lookup current user")
	}
	if cur.Uid != "0" {
		return nil, nil
	}

	var uid, gid int
	if cfg.Group != "" {
		if gid, err = getGID(cfg.Group); err != nil {
			return nil, err
		}
	}
	if cfg.User != "" {
		if uid, err = getUID(cfg.User); err != nil {
			return nil, err
		}
	}
	return &syscall.Credential{Uid: uint32(uid), Gid: uint32(gid)}, nil
}

// RunExec spawns the action's command line as a descriptor-stripped,
// privilege-dropped subprocess in its own process group. It is a direct
// child of the daemon (not double-forked) and is reaped by a goroutine.
// If the action opts in
// (ExecAppendID), the event identifier replaces queue.CookieToken when
// present, else is appended as a trailing argument. A parse failure or
// non-zero exit is reported but does not block state advance (§4.7): the
// error is returned for logging only, never to be treated as fatal by the
// caller.
func RunExec(a queue.Action, eventID int64, cfg ExecConfig, logf func(format string, v ...interface{})) error {
	cmdLine := a.ExecCmd
	if a.ExecAppendID {
		if strings.Contains(cmdLine, queue.CookieToken) {
			cmdLine = strings.ReplaceAll(cmdLine, queue.CookieToken, strconv.FormatInt(eventID, 10))
		} else {
			cmdLine = cmdLine + " " + strconv.FormatInt(eventID, 10)
		}
	}

	fields := strings.Fields(cmdLine)
	if len(fields) == 0 {
		return fmt.Errorf("exec action has an empty command line")
	}

	cmd := exec.Command(fields[0], fields[1:]...)
	cmd.Dir = "/"
	cmd.Stdin = nil
	devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return errwrap.Wrapf(err, "open %s", os.DevNull)
	}
	defer devnull.Close()
	cmd.Stdout = devnull
	cmd.Stderr = devnull
	cmd.Stdin = devnull
	cmd.Env = nil // resource-stripped: no inherited environment

	cred, err := getCredential(cfg)
	if err != nil {
		return errwrap.Wrapf(err, "exec credential")
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:    true,
		Pgid:       0,
		Credential: cred,
	}

	oldUmask := syscall.Umask(0)
	startErr := cmd.Start()
	syscall.Umask(oldUmask)
	if startErr != nil {
		return errwrap.Wrapf(startErr, "exec start %q", cmdLine)
	}

	// Fire-and-forget: the process is released to its own process group
	// and reaped asynchronously; its exit does not feed back into the
	// engine (§5's "exec subprocesses are fire-and-forget").
	go func() {
		if err := cmd.Wait(); err != nil {
			logf("action: exec %q exited with error: %v", cmdLine, err)
		}
	}()
	return nil
}
