package emu

// Config contains settings that affect emulation behavior.
type Config struct {
	Trace    bool // set from cmd/gbemu's --trace flag; Machine does not read it
	LimitFPS bool // Machine does not read it; StepFrame never throttles

	Headless bool // no windowed UI; cmd/gbemu drives frames itself

	// Doctor turns on the PPU's LY=0x90 read quirk (Bus.SetDoctorMode);
	// the Machine writes no trace lines itself. FileLogs is not read by the
	// Machine; cmd/gbemu checks it to send log output to gbemu.log.
	Doctor   bool
	FileLogs bool

	// SerialToTerminal mirrors the serial port (FF01/FF02) to os.Stdout in
	// addition to any writer set with SetSerialWriter, matching how test
	// ROMs like blargg's report pass/fail over the link cable.
	SerialToTerminal bool

	// Timing carries the --timing value. StepFrame does not read it;
	// cmd/gbemu's headless loop sleeps to ~59.73 Hz per frame when it is
	// "vsync" and runs unthrottled for any other value.
	Timing string
}
