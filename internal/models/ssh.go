package models

// SSHShutdownConfig holds SSH shutdown configuration. Host is taken from the
// shutdown command argument when empty.
type SSHShutdownConfig struct {
	Host          string
	Port          int
	Username      string
	PrivateKey    []byte // loaded from file path
	KeyPath       string // path to key file
	KnownHosts    string // optional known_hosts file; host keys are not checked when empty
	ShutdownDelay int    // minutes before shutdown
	OS            string // "linux" (default) or "windows"
}

// SSHResult holds the result of an SSH operation.
type SSHResult struct {
	CommandRun bool
	Output     string
	Error      error
}
