package gps

import (
	"bufio"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	nmea "github.com/adrianmo/go-nmea"
	"go.bug.st/serial"
)

// knotsToMPS converts NMEA speed over ground to meters/second.
const knotsToMPS = 0.514444

// hdopToMeters is the nominal user-equivalent range error multiplier used to
// estimate horizontal accuracy from HDOP.
const hdopToMeters = 5.0

// NMEAProvider reads standard NMEA 0183 sentences from a UART GPS.
// Compatible with u-blox NEO-M8N and any standard NMEA receiver.
type NMEAProvider struct {
	portPath string
	baudRate int
	port     serial.Port
	scanner  *bufio.Scanner
	mu       sync.Mutex
	last     Reading
}

// NMEAConfig holds configuration for the NMEA GPS provider.
type NMEAConfig struct {
	PortPath string `yaml:"port_path" json:"portPath"`
	BaudRate int    `yaml:"baud_rate" json:"baudRate"`
}

// NewNMEA creates a new NMEA GPS provider.
func NewNMEA(cfg NMEAConfig) *NMEAProvider {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 9600 // Standard NMEA default
	}
	return &NMEAProvider{
		portPath: cfg.PortPath,
		baudRate: cfg.BaudRate,
		last: Reading{
			Fix:        sentinelFix(),
			CompassAcc: -1,
		},
	}
}

func (n *NMEAProvider) Name() string { return "NMEA GPS" }

func (n *NMEAProvider) Connect() error {
	mode := &serial.Mode{
		BaudRate: n.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(n.portPath, mode)
	if err != nil {
		return fmt.Errorf("gps: failed to open %s: %w", n.portPath, err)
	}
	port.SetReadTimeout(200 * time.Millisecond)
	n.port = port
	n.scanner = bufio.NewScanner(port)
	log.Printf("[gps] connected to %s at %d baud", n.portPath, n.baudRate)
	return nil
}

func (n *NMEAProvider) Close() error {
	if n.port != nil {
		return n.port.Close()
	}
	return nil
}

// Read consumes NMEA sentences until it has seen an RMC and a GGA (or runs
// out of lines), then returns a copy of the latest reading.
func (n *NMEAProvider) Read() (*Reading, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.scanner == nil {
		return nil, fmt.Errorf("gps: not connected")
	}

	gotRMC := false
	gotGGA := false
	for i := 0; i < 20 && !(gotRMC && gotGGA); i++ {
		if !n.scanner.Scan() {
			break
		}
		line := strings.TrimSpace(n.scanner.Text())
		if !strings.HasPrefix(line, "$") {
			continue
		}

		s, err := nmea.Parse(line)
		if err != nil {
			// Partial sentences and checksum garbage are routine on a
			// cold receiver.
			continue
		}
		n.apply(s)

		switch s.DataType() {
		case nmea.TypeRMC:
			gotRMC = true
		case nmea.TypeGGA:
			gotGGA = true
		}
	}

	cp := n.last
	return &cp, nil
}

// apply folds one parsed sentence into the latest reading.
func (n *NMEAProvider) apply(s nmea.Sentence) {
	switch s.DataType() {
	case nmea.TypeRMC:
		n.applyRMC(s.(nmea.RMC))
	case nmea.TypeGGA:
		n.applyGGA(s.(nmea.GGA))
	case nmea.TypeHDT:
		n.applyHDT(s.(nmea.HDT))
	}
}

// applyRMC fills position, speed and validity from a recommended-minimum
// sentence. A void fix carries no trustworthy data, so everything drops to
// the negative sentinels.
func (n *NMEAProvider) applyRMC(m nmea.RMC) {
	n.last.Valid = m.Validity == nmea.ValidRMC
	if !n.last.Valid {
		n.last.Fix = sentinelFix()
		return
	}

	n.last.Fix.Latitude = m.Latitude
	n.last.Fix.Longitude = m.Longitude
	n.last.Fix.SpeedMPS = m.Speed * knotsToMPS
	n.last.Fix.Timestamp = time.Now().UTC()
	if n.last.Fix.AccuracyM < 0 {
		// No GGA seen yet; assume a workable fix until HDOP says otherwise.
		n.last.Fix.AccuracyM = hdopToMeters
	}
}

// applyGGA fills satellite count, HDOP and the derived horizontal accuracy.
// Accuracy stays at the invalid sentinel until an active RMC has supplied a
// position; otherwise a cold-start GGA would make the zero-value (0,0)
// position look trustworthy.
func (n *NMEAProvider) applyGGA(m nmea.GGA) {
	n.last.Satellites = int(m.NumSatellites)
	n.last.HDOP = m.HDOP

	if m.FixQuality == nmea.Invalid || !n.last.Valid {
		n.last.Fix.AccuracyM = -1
		return
	}
	n.last.Fix.AccuracyM = m.HDOP * hdopToMeters
}

// applyHDT records a true-heading sentence as the compass source.
func (n *NMEAProvider) applyHDT(m nmea.HDT) {
	n.last.CompassDeg = m.Heading
	n.last.CompassAcc = 0
}
