package security

import (
	"os"
	"os/exec"
	"syscall"
)

// execFn replaces the running process image; swapped out in tests.
var execFn = syscall.Exec

// IsPrivileged reports whether the process can manage network interfaces.
func IsPrivileged() bool {
	return os.Geteuid() == 0
}

// ElevationArgv is the command line used to re-run the current binary
// through sudo with the same arguments.
func ElevationArgv(self string, args []string) []string {
	argv := make([]string, 0, len(args)+2)
	argv = append(argv, "sudo", self)
	return append(argv, args...)
}

// Elevate re-executes the current binary under sudo. The sudo process takes
// over this PID and the controlling terminal, so its exit status becomes
// ours. Elevate only returns on failure.
func Elevate(args []string) error {
	sudo, err := exec.LookPath("sudo")
	if err != nil {
		return NewClassifiedError("root privileges are required and sudo is not available", err.Error())
	}
	self, err := os.Executable()
	if err != nil {
		return NewClassifiedError("cannot locate the running executable", err.Error())
	}
	if err := execFn(sudo, ElevationArgv(self, args), os.Environ()); err != nil {
		return NewClassifiedError("failed to re-run with sudo", err.Error())
	}
	return nil
}
