package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
)

var (
	version       = flag.Bool("version", false, "Print version info")
	help          = flag.Bool("help", false, "Print help")
	logLevel      = flag.Int("log", 3, "Log level (0=NONE, 1=ERROR, 2=WARN, 3=INFO, 4=DEBUG)")
	redisServer   = flag.String("redis_server", "127.0.0.1", "Redis server address")
	redisPort     = flag.Int("redis_port", 6379, "Redis server port")
	tripDB        = flag.String("trip_db", "/var/lib/eksr-instrument/trips.db", "Odometer database path")
	simulate      = flag.Bool("sim", false, "Use a simulated controller instead of BLE")
	gearRatio     = flag.Float64("gear_ratio", 4.0, "Motor to rear wheel reduction ratio")
	wheelCircumf  = flag.Float64("wheel_circumference", 1.350, "Rear wheel circumference in meters")
)

const (
	ProjectName    = "eksr-instrument"
	ProjectVersion = "1.0.0"
)

func printVersion() {
	fmt.Printf("%s v%s\n", ProjectName, ProjectVersion)
}

func printHelp() {
	printVersion()
	flag.PrintDefaults()
}

func main() {
	flag.Parse()

	if *version {
		printVersion()
		os.Exit(0)
	}

	if *help {
		printHelp()
		os.Exit(0)
	}

	// Validate log level
	if *logLevel < 0 || *logLevel > 4 {
		log.Fatalf("invalid log level %d", *logLevel)
	}

	if *gearRatio <= 0 {
		log.Fatalf("invalid gear ratio %f", *gearRatio)
	}
	if *wheelCircumf <= 0 {
		log.Fatalf("invalid wheel circumference %f", *wheelCircumf)
	}

	opts := &Options{
		LogLevel:           LogLevel(*logLevel),
		RedisServerAddr:    *redisServer,
		RedisServerPort:    uint16(*redisPort),
		TripDBPath:         *tripDB,
		Simulate:           *simulate,
		GearRatio:          *gearRatio,
		WheelCircumference: *wheelCircumf,
	}

	app, err := NewInstrumentApp(opts)
	if err != nil {
		log.Fatalf("failed to create instrument app: %v", err)
	}
	defer app.Destroy()

	// Handle SIGINT and SIGTERM
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sessionErr := make(chan error, 1)
	go func() {
		sessionErr <- app.Run()
	}()

	// Run until the link drops or a signal is received. A dead link exits
	// non-zero so the supervisor restarts the service into a fresh search.
	select {
	case <-sigChan:
	case err := <-sessionErr:
		if err != nil {
			app.Destroy()
			log.Fatalf("controller link lost: %v", err)
		}
	}
}
