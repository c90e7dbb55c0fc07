package main

// Redis message types mirroring the instrument data model for the external
// display process.
type TelemetryStatus struct {
	Speed    float64 // km/h
	RPM      uint16  // rear-wheel equivalent
	Power    float64 // kW, negative while driving
	Voltage  float64 // volts
	Gear     string
	Throttle uint16 // raw ADC
}

type ThermalStatus struct {
	ControllerTemp float64
	MotorTemp      float64
}

type TripStatus struct {
	Total OdometerState
	Trip1 OdometerState
	Trip2 OdometerState
}

type BatteryStatus struct {
	Voltage float64
	Low     bool
}
