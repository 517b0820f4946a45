/*
 * SPDX-License-Identifier: Apache-2.0
 */

package main

import "syscall"

// detachedAttr puts the forked child in its own session so it survives
// the parent's exit.
func detachedAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}
