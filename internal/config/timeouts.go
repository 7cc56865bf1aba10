package config

import (
	"os"
	"strconv"
	"time"
)

// Timeouts holds every wait and poll interval of the tool.
type Timeouts struct {
	InstanceConverge     time.Duration // all requested instances running with an address
	InstancePoll         time.Duration
	VolumeWait           time.Duration // volume available / attached
	VolumePoll           time.Duration
	Terminate            time.Duration // owned instances reach terminated
	TerminatePoll        time.Duration
	ComponentLaunch      time.Duration // every component started on the scheduler
	ComponentPoll        time.Duration
	ComponentDestroy     time.Duration
	SchedulerStartupWait time.Duration // grace period before the first scheduler query after create
	SSHDial              time.Duration
	RetryMaxAttempts     int
	RetryInitialDelay    time.Duration
}

// LoadTimeouts reads timeouts from the environment, falling back to defaults
// for unset or unparsable values.
//
// Environment Variables:
//   - CLUSTEROUS_TIMEOUT_INSTANCE (default: 10m)
//   - CLUSTEROUS_TIMEOUT_VOLUME (default: 5m)
//   - CLUSTEROUS_TIMEOUT_TERMINATE (default: 5m)
//   - CLUSTEROUS_TIMEOUT_COMPONENT_LAUNCH (default: 30m)
//   - CLUSTEROUS_TIMEOUT_COMPONENT_DESTROY (default: 60s)
//   - CLUSTEROUS_TIMEOUT_SCHEDULER_STARTUP (default: 10s)
//   - CLUSTEROUS_TIMEOUT_SSH_DIAL (default: 10s)
//   - CLUSTEROUS_RETRY_MAX_ATTEMPTS (default: 5)
//   - CLUSTEROUS_RETRY_INITIAL_DELAY (default: 1s)
func LoadTimeouts() *Timeouts {
	return &Timeouts{
		InstanceConverge:     parseDuration("CLUSTEROUS_TIMEOUT_INSTANCE", 10*time.Minute),
		InstancePoll:         3 * time.Second,
		VolumeWait:           parseDuration("CLUSTEROUS_TIMEOUT_VOLUME", 5*time.Minute),
		VolumePoll:           2 * time.Second,
		Terminate:            parseDuration("CLUSTEROUS_TIMEOUT_TERMINATE", 5*time.Minute),
		TerminatePoll:        2 * time.Second,
		ComponentLaunch:      parseDuration("CLUSTEROUS_TIMEOUT_COMPONENT_LAUNCH", 30*time.Minute),
		ComponentPoll:        3 * time.Second,
		ComponentDestroy:     parseDuration("CLUSTEROUS_TIMEOUT_COMPONENT_DESTROY", 60*time.Second),
		SchedulerStartupWait: parseDuration("CLUSTEROUS_TIMEOUT_SCHEDULER_STARTUP", 10*time.Second),
		SSHDial:              parseDuration("CLUSTEROUS_TIMEOUT_SSH_DIAL", 10*time.Second),
		RetryMaxAttempts:     parseInt("CLUSTEROUS_RETRY_MAX_ATTEMPTS", 5),
		RetryInitialDelay:    parseDuration("CLUSTEROUS_RETRY_INITIAL_DELAY", 1*time.Second),
	}
}

// TestTimeouts returns millisecond-scale timeouts for unit tests.
func TestTimeouts() *Timeouts {
	return &Timeouts{
		InstanceConverge:  200 * time.Millisecond,
		InstancePoll:      time.Millisecond,
		VolumeWait:        200 * time.Millisecond,
		VolumePoll:        time.Millisecond,
		Terminate:         200 * time.Millisecond,
		TerminatePoll:     time.Millisecond,
		ComponentLaunch:   200 * time.Millisecond,
		ComponentPoll:     time.Millisecond,
		ComponentDestroy:  200 * time.Millisecond,
		SSHDial:           100 * time.Millisecond,
		RetryMaxAttempts:  1,
		RetryInitialDelay: time.Millisecond,
	}
}

func parseDuration(envVar string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}

func parseInt(envVar string, defaultVal int) int {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return i
}
