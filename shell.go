package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/CodedInternet/rcdrive/onboard"
	"github.com/CodedInternet/rcdrive/onboard/partition"
)

const SHELL_CLIENT = "shell"

// newShell builds the local development shell. Commands go through the
// same inbox as remote clients.
func newShell(controller *onboard.Controller, table *partition.Table, inbox chan<- onboard.Event) *ishell.Shell {
	send := func(payload []byte) {
		inbox <- onboard.Event{Kind: onboard.EventMessage, Client: SHELL_CLIENT, Payload: payload}
	}

	shell := ishell.New()
	shell.Println("RC vehicle development shell")
	shell.ShowPrompt(true)

	shell.AddCmd(&ishell.Cmd{
		Name: "drive",
		Help: "drive <throttle> <steer>",
		Func: func(c *ishell.Context) {
			payload, err := drivePayload(c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			send(payload)
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "stop",
		Help: "emergency stop",
		Func: func(c *ishell.Context) {
			send([]byte("S"))
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name:      "mode",
		Help:      "mode <auto|manual>",
		Completer: func([]string) []string { return []string{"auto", "manual"} },
		Func: func(c *ishell.Context) {
			payload, err := modePayload(c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			send(payload)
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "status",
		Help: "show targets and applied duty",
		Func: func(c *ishell.Context) {
			c.Print(statusTable(controller))
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "partitions",
		Help: "list image partitions",
		Func: func(c *ishell.Context) {
			out, err := partitionTable(table)
			if err != nil {
				c.Err(err)
				return
			}
			c.Print(out)
		},
	})

	return shell
}

func drivePayload(args []string) ([]byte, error) {
	if len(args) != 2 {
		return nil, errors.New("usage: drive <throttle> <steer>")
	}
	throttle, err := strconv.Atoi(args[0])
	if err != nil {
		return nil, err
	}
	steer, err := strconv.Atoi(args[1])
	if err != nil {
		return nil, err
	}
	return json.Marshal(onboard.JoystickCommand{Steer: steer, Throttle: throttle})
}

func modePayload(args []string) ([]byte, error) {
	if len(args) != 1 {
		return nil, errors.New("usage: mode <auto|manual>")
	}
	switch strings.ToLower(args[0]) {
	case "auto", "a":
		return []byte("A"), nil
	case "manual", "m":
		return []byte("M"), nil
	}
	return nil, errors.New("unknown mode " + args[0])
}

func statusTable(controller *onboard.Controller) string {
	var b bytes.Buffer
	snap := controller.State.Snapshot()
	motors := controller.Motors()
	applied := motors.Applied()

	t := table.NewWriter()
	t.SetOutputMirror(&b)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"axis", "target", "applied"})
	t.AppendRow(table.Row{"A (throttle)", snap.MotorA, applied.A})
	t.AppendRow(table.Row{"B (steering)", snap.MotorB, applied.B})
	t.AppendSeparator()
	t.AppendRow(table.Row{"mode", snap.Mode, ""})
	t.AppendRow(table.Row{"bridge", strconv.FormatBool(motors.Enabled()), ""})
	t.Render()

	return b.String()
}

func partitionTable(pt *partition.Table) (string, error) {
	parts, err := pt.All()
	if err != nil {
		return "", err
	}
	running, _ := pt.Running()
	next, _ := pt.BootPartition()

	var b bytes.Buffer
	t := table.NewWriter()
	t.SetOutputMirror(&b)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"label", "type", "version", "size", ""})
	for _, p := range parts {
		var flags []string
		if p.Label == running.Label {
			flags = append(flags, "running")
		}
		if p.Label == next.Label {
			flags = append(flags, "next")
		}
		t.AppendRow(table.Row{p.Label, p.SubType, p.Version, p.Size, strings.Join(flags, ",")})
	}
	t.Render()

	return b.String(), nil
}
