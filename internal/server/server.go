package server

import (
	"context"
	"encoding/json"
	"io"
	"io/fs"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dlammers/speedo/internal/gps"
	"github.com/dlammers/speedo/internal/motion"
	"github.com/dlammers/speedo/internal/tracklog"
)

// Server polls the GPS source, feeds fixes through the motion filter, and
// broadcasts readout frames to WebSocket clients.
type Server struct {
	cfg     *Config
	gpsProv gps.Provider
	filter  *motion.Filter
	webFS   fs.FS
	trip    *tracklog.Logger

	clients   map[*wsClient]struct{}
	clientsMu sync.RWMutex

	upgrader websocket.Upgrader

	gpsMu   sync.Mutex
	lastGPS *gps.Reading

	// Odometer — persistent distance tracking
	odoPath   string
	odoTicker *time.Ticker
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Frame is the JSON structure sent to all WebSocket clients.
type Frame struct {
	GPS     *gps.Reading     `json:"gps,omitempty"`
	Motion  *motion.Snapshot `json:"motion,omitempty"`
	Speed   *SpeedReadout    `json:"speed,omitempty"`
	Trip    *TripReadout     `json:"trip,omitempty"`
	Display *DisplayConfig   `json:"display,omitempty"`
	Stamp   int64            `json:"stamp"` // Unix ms
}

// SpeedReadout is the display-converted speed. Valid is false when there is
// no reliable reading; clients render a placeholder instead of zero.
type SpeedReadout struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"` // "kph" or "mph"
	Valid bool    `json:"valid"`
}

// TripReadout is the display-converted trip distance.
type TripReadout struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"` // "km" or "mi"
}

// New creates a new Server.
func New(cfg *Config, gpsProv gps.Provider, webFS fs.FS) *Server {
	odoPath := filepath.Join(filepath.Dir(cfg.path), "odometer.dat")
	if cfg.path == "" {
		odoPath = "/etc/speedo/odometer.dat"
	}

	s := &Server{
		cfg:     cfg,
		gpsProv: gpsProv,
		filter:  motion.New(),
		webFS:   webFS,
		trip:    tracklog.New(cfg.Logging),
		clients: make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		odoPath: odoPath,
	}
	s.loadOdometer()
	return s
}

// Filter exposes the motion filter, mainly for tests.
func (s *Server) Filter() *motion.Filter { return s.filter }

// Run starts the HTTP server and data polling loops.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()

	// Serve embedded web files
	mux.Handle("/", http.FileServer(http.FS(s.webFS)))

	// WebSocket endpoint
	mux.HandleFunc("/ws", s.handleWS)

	// Config API
	mux.HandleFunc("/api/config", s.handleConfig)

	// Trip reset API
	mux.HandleFunc("/api/trip/reset", s.handleResetTrip)

	// Start data polling
	go s.pollLoop(ctx)

	// Persist odometer every 30 seconds
	s.odoTicker = time.NewTicker(30 * time.Second)
	go func() {
		for {
			select {
			case <-ctx.Done():
				s.saveOdometer()
				return
			case <-s.odoTicker.C:
				s.saveOdometer()
			}
		}
	}()

	srv := &http.Server{
		Addr:    s.cfg.Server.ListenAddr,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		s.saveOdometer()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	log.Printf("[server] listening on %s", s.cfg.Server.ListenAddr)
	return srv.ListenAndServe()
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade error: %v", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 64),
	}

	s.clientsMu.Lock()
	s.clients[client] = struct{}{}
	total := len(s.clients)
	s.clientsMu.Unlock()

	log.Printf("[ws] client connected (%d total)", total)

	// Send initial display prefs + current readouts so a fresh client does
	// not render blank until the next broadcast tick.
	if data, err := json.Marshal(s.buildFrame(nil)); err == nil {
		client.send <- data
	}

	// Writer goroutine
	go func() {
		defer conn.Close()
		for msg := range client.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	// Reader goroutine (handle incoming messages / keep-alive)
	go func() {
		defer func() {
			s.clientsMu.Lock()
			delete(s.clients, client)
			total := len(s.clients)
			s.clientsMu.Unlock()
			close(client.send)
			log.Printf("[ws] client disconnected (%d total)", total)
		}()
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				break
			}
		}
	}()
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		data, err := s.cfg.ToJSON()
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)

	case http.MethodPost:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "bad request", 400)
			return
		}
		if err := s.cfg.UpdateFromJSON(body); err != nil {
			http.Error(w, err.Error(), 400)
			return
		}
		if err := s.cfg.Save(); err != nil {
			log.Printf("[config] save failed: %v", err)
		}
		// Broadcast updated display prefs
		display := s.cfg.DisplayPrefs()
		s.broadcast(Frame{Display: &display, Stamp: time.Now().UnixMilli()})

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))

	default:
		http.Error(w, "method not allowed", 405)
	}
}

// handleResetTrip zeroes the trip distance on user confirmation. Speed and
// heading readings are untouched.
func (s *Server) handleResetTrip(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", 405)
		return
	}
	s.filter.ResetDistance()
	s.saveOdometer()
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// pollLoop runs the GPS poll and the client broadcast. All fixes flow into
// the filter from the single poll goroutine, in arrival order.
func (s *Server) pollLoop(ctx context.Context) {
	gpsTicker := time.NewTicker(100 * time.Millisecond)       // 10 Hz
	broadcastTicker := time.NewTicker(100 * time.Millisecond) // Match GPS rate
	defer gpsTicker.Stop()
	defer broadcastTicker.Stop()

	// GPS polling goroutine — the only caller of filter.Accept
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-gpsTicker.C:
				if s.gpsProv == nil {
					continue
				}
				reading, err := s.gpsProv.Read()
				if err != nil {
					// Stream failure: no current speed, nothing else changes.
					s.filter.MarkSpeedUnavailable()
					continue
				}
				s.gpsMu.Lock()
				s.lastGPS = reading
				s.gpsMu.Unlock()

				s.filter.Accept(reading.Fix)
				if reading.CompassAcc >= 0 {
					s.filter.SetCompassHeading(reading.CompassDeg, reading.CompassAcc)
				}
			}
		}
	}()

	// Broadcast loop — sends the latest readouts to clients
	for {
		select {
		case <-ctx.Done():
			s.trip.Close()
			return
		case <-broadcastTicker.C:
			s.gpsMu.Lock()
			gpsSnap := s.lastGPS
			s.gpsMu.Unlock()

			if gpsSnap == nil {
				continue
			}

			frame := s.buildFrame(gpsSnap)
			s.broadcast(frame)

			// Record to CSV log
			s.trip.Record(gpsSnap, *frame.Motion)
		}
	}
}

// buildFrame assembles a broadcast frame from the current filter state and
// the display preferences.
func (s *Server) buildFrame(gpsSnap *gps.Reading) Frame {
	snap := s.filter.Snapshot()
	display := s.cfg.DisplayPrefs()
	return Frame{
		GPS:     gpsSnap,
		Motion:  &snap,
		Speed:   speedReadout(snap, display),
		Trip:    tripReadout(snap, display),
		Display: &display,
		Stamp:   time.Now().UnixMilli(),
	}
}

// speedReadout converts the filtered speed into the preferred display unit.
func speedReadout(snap motion.Snapshot, d DisplayConfig) *SpeedReadout {
	if d.Imperial() {
		return &SpeedReadout{Value: motion.MPH(snap.SpeedMPS), Unit: "mph", Valid: snap.SpeedValid}
	}
	return &SpeedReadout{Value: motion.KPH(snap.SpeedMPS), Unit: "kph", Valid: snap.SpeedValid}
}

// tripReadout converts the trip distance into the preferred display unit.
func tripReadout(snap motion.Snapshot, d DisplayConfig) *TripReadout {
	if d.Imperial() {
		return &TripReadout{Value: motion.Miles(snap.TotalDistanceM), Unit: "mi"}
	}
	return &TripReadout{Value: motion.Kilometers(snap.TotalDistanceM), Unit: "km"}
}

// loadOdometer restores the persisted trip distance into the filter.
func (s *Server) loadOdometer() {
	data, err := os.ReadFile(s.odoPath)
	if err != nil {
		log.Printf("[odo] no saved data at %s (starting at 0)", s.odoPath)
		return
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		log.Printf("[odo] unreadable data at %s: %v", s.odoPath, err)
		return
	}
	s.filter.SetTotalDistance(v)
	log.Printf("[odo] loaded: %.1f m", v)
}

// saveOdometer persists the current trip distance to disk.
func (s *Server) saveOdometer() {
	m := s.filter.TotalDistance()

	// Ensure directory exists
	os.MkdirAll(filepath.Dir(s.odoPath), 0755)

	data := strconv.FormatFloat(m, 'f', 3, 64) + "\n"
	if err := os.WriteFile(s.odoPath, []byte(data), 0644); err != nil {
		log.Printf("[odo] save failed: %v", err)
	}
}

func (s *Server) broadcast(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for client := range s.clients {
		select {
		case client.send <- data:
		default:
			// Client too slow, skip
		}
	}
}
