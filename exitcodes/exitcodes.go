// Package exitcodes defines the standard exit codes used by testdeck.
package exitcodes

// Exit code constants used by testdeck
// These constants define the exit codes that the application uses to indicate
// various states when it exits:
//
// * Success (0): Clean shutdown
// * ConfigErr (1): Invalid flags, config file, or seed file
// * RuntimeErr (2): Runtime errors such as storage failures or panics
const (
	Success    = 0
	ConfigErr  = 1
	RuntimeErr = 2
)
