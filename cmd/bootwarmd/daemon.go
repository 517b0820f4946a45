/*
 * SPDX-License-Identifier: Apache-2.0
 */

package main

import (
	"os"
	"os/exec"

	"github.com/containerd/containerd/log"
)

// daemonizeEnv marks a re-exec'd child so it does not daemonize again.
const daemonizeEnv = "BOOTWARMD_DAEMONIZED=1"

// daemonize implements §5's "fork before event dispatch, parent exits"
// step. Go cannot safely call fork(2) directly once the runtime has
// started goroutines, so it re-executes the same binary and arguments
// in a detached child and returns (true, 0) to tell the caller to exit
// immediately; the child, which carries daemonizeEnv, gets (false, 0)
// and proceeds to trace normally.
func daemonize(argv []string) (parent bool, code int) {
	for _, e := range os.Environ() {
		if e == daemonizeEnv {
			return false, 0
		}
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(), daemonizeEnv)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = detachedAttr()

	if err := cmd.Start(); err != nil {
		log.L.WithError(err).Error("failed to fork into the background")
		return true, 1
	}
	log.L.WithField("pid", cmd.Process.Pid).Info("forked background trace process")
	return true, 0
}
