package platform

import (
	"log"
	"os"
)

// Restarter is what the connectivity fallback and the update path call
// once they are done with the current boot.
type Restarter interface {
	Restart() error
}

type RestartFunc func() error

func (f RestartFunc) Restart() error {
	return f()
}

// ProcessRestarter is used when the binary is not the init process,
// for example under -sim. It exits and leaves the restart to the
// supervisor.
type ProcessRestarter struct {
	Logger *log.Logger
	Exit   func(code int)
}

func (p ProcessRestarter) Restart() error {
	if p.Logger != nil {
		p.Logger.Println("exiting for restart")
	}
	exit := p.Exit
	if exit == nil {
		exit = os.Exit
	}
	exit(3)
	return nil
}
