package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/caarlos0/env/v6"

	"github.com/CodedInternet/rcdrive/comms"
	"github.com/CodedInternet/rcdrive/onboard"
	"github.com/CodedInternet/rcdrive/onboard/broadcast"
	"github.com/CodedInternet/rcdrive/onboard/hardware"
	"github.com/CodedInternet/rcdrive/onboard/network"
	"github.com/CodedInternet/rcdrive/onboard/ota"
	"github.com/CodedInternet/rcdrive/onboard/partition"
	"github.com/CodedInternet/rcdrive/onboard/platform"
)

const (
	INBOX_SIZE    = 64
	RESTART_DELAY = 500 * time.Millisecond
)

type EnvConfig struct {
	JWT_ISSUER   string `env:"DEVICE_UUID" envDefault:"DEV"`
	JWT_SECRET   string `env:"JWT_SECRET" envDefault:"xWumOlRfhu+LBi2F2e1yF4FiaopQ5mr8klL4fpILnlI="`
	OTA_PASSWORD string `env:"OTA_PASSWORD"`
	PRODUCTION   bool   `env:"PRODUCTION" envDefault:"0"`
	DEBUG        bool   `env:"DEBUG" envDefault:"0"`
	SRCDIR       string `env:"SRCDIR" envDefault:"."`
	HTMLDIR      string `env:"HTMLDIR" envDefault:"./frontend/dist/"`
	DATADIR      string `env:"DATADIR" envDefault:"./tmp"`
	MQTT_BROKER  string `env:"MQTT_BROKER"`
	MQTT_TOPIC   string `env:"MQTT_TOPIC"`
	Credentials  *Credentials
	Simulated    bool
}

var (
	ENV *EnvConfig
)

func init() {
	// Load main config
	ENV = new(EnvConfig)
	if err := env.Parse(ENV); err != nil {
		panic(err)
	}

	if ENV.PRODUCTION {
		ENV.DATADIR = "/data"
	}

	if ENV.OTA_PASSWORD != "" {
		creds, err := NewCredentials([]byte(ENV.OTA_PASSWORD))
		if err != nil {
			panic(err)
		}
		ENV.Credentials = creds
		ENV.OTA_PASSWORD = ""
	}
}

func main() {
	// process flags
	simulated := flag.Bool("sim", false, "Run the vehicle against a simulated bridge and network")
	port := flag.String("port", "0.0.0.0:80", "Specify the ip:port to listen on")
	configFile := flag.String("config", "", "Path to vehicle.yaml, defaults to $SRCDIR/vehicle.yaml")
	withShell := flag.Bool("shell", false, "Start the development shell")
	flag.Parse()

	ENV.Simulated = *simulated
	logger := log.New(os.Stdout, "[rc] ", log.Ldate|log.Ltime|log.Lshortfile)

	config, err := loadConfig(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Unable to load vehicle config: %v", err))
	}

	table, err := partition.Open(filepath.Join(ENV.DATADIR, "partitions.db"), filepath.Join(ENV.DATADIR, "images"))
	if err != nil {
		panic(err)
	}
	defer table.Close() // close database when finished

	if err = table.Seed(config.Firmware); err != nil {
		panic(err)
	}
	if err = table.MarkBooted(); err != nil {
		logger.Println("unable to promote boot partition:", err)
	}

	telemetry := broadcast.New(logger)
	inbox := make(chan onboard.Event, INBOX_SIZE)
	hub := comms.NewHub(inbox, log.New(os.Stdout, "[ws] ", log.Ldate|log.Ltime|log.Lshortfile))
	telemetry.AddSink(hub)

	dev, err := openPeripheral(config)
	if err != nil {
		panic(fmt.Sprintf("Unable to initialize motor driver: %v", err))
	}
	defer dev.Close()

	var restarter platform.Restarter = platform.RestartFunc(platform.Restart)
	if ENV.Simulated {
		restarter = platform.ProcessRestarter{Logger: logger}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	//---
	// Bring up the network, falling back to recovery
	//---
	station, hw := openStation(config)
	manager := network.NewManager(station, table, restarter, telemetry, logger)
	ip, err := manager.Connect(ctx)
	if err != nil {
		logger.Println("network:", err)
		return
	}
	hostname := network.Hostname(config.Hostname, hw)

	controller := onboard.NewController(dev, config.Ramp, telemetry, inbox)

	updates := ota.NewListener(table, config.FirmwareVersion(), ota.Hooks{
		OnStart: func(kind ota.Kind) {
			name := "filesystem"
			if kind == ota.KindFirmware {
				name = "sketch"
			}
			telemetry.Log("OTA: Start updating " + name)
		},
		OnComplete: func() {
			telemetry.Log("OTA: Update Finished.")
		},
		OnError: func(code ota.ErrorCode, err error) {
			telemetry.Logf("OTA Error: %d (%s): %v", code, code, err)
		},
	})
	updates.Authorize = AuthorizeRequest
	if config.OTA.Constraint != "" {
		if err := updates.SetConstraint(config.OTA.Constraint); err != nil {
			logger.Println(err)
		}
	}
	controller.SetUpdateService(updates)
	telemetry.Log("OTA Ready. Hostname: " + hostname + ".local")

	if server, err := network.Advertise(hostname, listenPort(*port), ip, station.Interface(), config.Firmware); err != nil {
		logger.Println(err)
	} else {
		defer server.Shutdown()
	}

	if broker := config.MQTTBroker(ENV.MQTT_BROKER); broker != "" {
		topic := config.MQTTTopic(ENV.MQTT_TOPIC, hostname)
		bridge := comms.DialMQTTBridge(broker, hostname, topic, inbox, log.New(os.Stdout, "[mqtt] ", log.Ldate|log.Ltime|log.Lshortfile))
		if err := bridge.Start(); err != nil {
			logger.Println(err)
		}
		// frames are dropped until the broker is reachable
		telemetry.AddSink(bridge)
		defer bridge.Stop()
	}

	//---
	// Serve the control page, websocket and API
	//---
	vehicle := &Vehicle{
		Controller: controller,
		Hub:        hub,
		Updates:    updates,
		Hostname:   hostname,
		Firmware:   config.Firmware,
	}
	server := &http.Server{Addr: *port, Handler: NewRouter(vehicle)}
	go func() {
		logger.Println("Listening on port", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(err)
		}
	}()
	if !ENV.PRODUCTION || ENV.DEBUG {
		logger.Println("Running in debug mode. Websocket authentication disabled.")
	}

	if *withShell {
		shell := newShell(controller, table, inbox)
		go shell.Run()
	}

	err = controller.Run(ctx)

	shutdown, done := context.WithTimeout(context.Background(), time.Second)
	server.Shutdown(shutdown)
	done()

	if err == onboard.ErrRestartRequested {
		telemetry.Log("Rebooting...")
		time.Sleep(RESTART_DELAY)
		if err := restarter.Restart(); err != nil {
			logger.Println("restart failed:", err)
		}
	}
}

func loadConfig(filename string) (onboard.VehicleConfig, error) {
	if filename == "" {
		filename = filepath.Join(ENV.SRCDIR, "vehicle.yaml")
		if ENV.PRODUCTION {
			filename = filepath.Join(ENV.DATADIR, "vehicle.yaml")
		}
	}
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		config := onboard.DefaultVehicleConfig()
		return config, config.Validate()
	}
	return onboard.LoadVehicleConfig(filename)
}

func openPeripheral(config onboard.VehicleConfig) (hardware.Peripheral, error) {
	if ENV.Simulated {
		return hardware.NewSimulatedBridge(), nil
	}
	return hardware.OpenSysfsBridge(config.SysfsConfig(hardware.SYSFS_ROOT))
}

type hostStation interface {
	network.Station
	Interface() *net.Interface
}

type simulatedStation struct {
	*network.SimulatedStation
}

func (simulatedStation) Interface() *net.Interface {
	return nil
}

func openStation(config onboard.VehicleConfig) (hostStation, net.HardwareAddr) {
	if ENV.Simulated {
		return simulatedStation{&network.SimulatedStation{ConnectAfter: 2}}, nil
	}

	s := &network.InterfaceStation{Name: config.Network.Interface}
	var hw net.HardwareAddr
	if iface := s.Interface(); iface != nil {
		hw = iface.HardwareAddr
	}
	return s, hw
}

func listenPort(addr string) int {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return 80
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return 80
	}
	return p
}
