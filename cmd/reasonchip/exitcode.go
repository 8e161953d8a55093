package main

// ExitCode is the fixed small enum every subcommand exits with.
type ExitCode int

const (
	ExitOK ExitCode = iota
	ExitGeneralError
	ExitInvalidArgs
	ExitConfigError
	ExitTransportError
	ExitCancelled
	ExitRemoteError
)

func (c ExitCode) Int() int { return int(c) }
