package commands

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/hubclient/hubclient-go/pkg/log"
	"github.com/hubclient/hubclient-go/pkg/wire"
)

// Stats holds aggregate statistics about a capture file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	FramesByKind      map[wire.Kind]int
	Completions       map[string]int
	Connections       map[string]*ConnectionStats
	Errors            int
	Truncated         error
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}

	latencyTotal time.Duration
	latencyCount int
}

// ConnectionStats holds statistics for a single client session.
type ConnectionStats struct {
	FirstSeen    time.Time
	LastSeen     time.Time
	Events       int
	DeviceID     string
	HubHost      string
	StateChanges int
	LastState    string
}

// MeanLatency returns the mean enqueue-to-completion latency, or zero.
func (s *Stats) MeanLatency() time.Duration {
	if s.latencyCount == 0 {
		return 0
	}
	return s.latencyTotal / time.Duration(s.latencyCount)
}

func newStats() *Stats {
	return &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		FramesByKind:      make(map[wire.Kind]int),
		Completions:       make(map[string]int),
		Connections:       make(map[string]*ConnectionStats),
	}
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByLayer[event.Layer]++
	s.EventsByCategory[event.Category]++
	s.EventsByDirection[event.Direction]++

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	conn, ok := s.Connections[event.ConnectionID]
	if !ok {
		conn = &ConnectionStats{FirstSeen: event.Timestamp, LastSeen: event.Timestamp}
		s.Connections[event.ConnectionID] = conn
	}
	conn.Events++
	if event.Timestamp.After(conn.LastSeen) {
		conn.LastSeen = event.Timestamp
	}
	if event.DeviceID != "" && conn.DeviceID == "" {
		conn.DeviceID = event.DeviceID
	}
	if event.HubHost != "" && conn.HubHost == "" {
		conn.HubHost = event.HubHost
	}

	if sc := event.StateChange; sc != nil && sc.Entity == log.StateEntityConnection {
		conn.StateChanges++
		conn.LastState = sc.NewState
	}

	if m := event.Message; m != nil {
		switch m.Type {
		case log.MessageTypeFrame:
			s.FramesByKind[m.Kind]++
		case log.MessageTypeCompletion:
			s.Completions[m.Result]++
			if m.Latency != nil {
				s.latencyTotal += *m.Latency
				s.latencyCount++
			}
		}
	}

	if event.Error != nil {
		s.Errors++
	}
}

// RunStats analyzes the capture file and prints statistics.
func RunStats(path string, w io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := newStats()
	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, log.ErrTruncated) {
			stats.Truncated = err
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		stats.add(event)
	}

	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== Hub Client Protocol Log Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerTransport, log.LayerWire, log.LayerClient} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-16s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryMessage, log.CategoryState, log.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-16s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-16s %d\n", dir.String()+":", count)
		}
	}

	if len(stats.FramesByKind) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Frames by Kind:")
		for k := wire.KindEvent; k.IsValid(); k++ {
			if count := stats.FramesByKind[k]; count > 0 {
				fmt.Fprintf(w, "  %-16s %d\n", k.String()+":", count)
			}
		}
	}

	if len(stats.Completions) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Completions:")
		results := make([]string, 0, len(stats.Completions))
		for r := range stats.Completions {
			results = append(results, r)
		}
		sort.Strings(results)
		for _, r := range results {
			fmt.Fprintf(w, "  %-16s %d\n", r+":", stats.Completions[r])
		}
		if mean := stats.MeanLatency(); mean > 0 {
			fmt.Fprintf(w, "  Mean latency:    %s\n", formatDuration(mean))
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Connections: %d\n", len(stats.Connections))
	if len(stats.Connections) > 0 {
		type connInfo struct {
			id    string
			stats *ConnectionStats
		}
		conns := make([]connInfo, 0, len(stats.Connections))
		for id, cs := range stats.Connections {
			conns = append(conns, connInfo{id, cs})
		}
		sort.Slice(conns, func(i, j int) bool {
			return conns[i].stats.FirstSeen.Before(conns[j].stats.FirstSeen)
		})

		fmt.Fprintln(w)
		for _, c := range conns {
			duration := c.stats.LastSeen.Sub(c.stats.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %d events, duration %s\n", shortenConnID(c.id), c.stats.Events, duration)
			if c.stats.DeviceID != "" {
				fmt.Fprintf(w, "           Device: %s\n", c.stats.DeviceID)
			}
			if c.stats.HubHost != "" {
				fmt.Fprintf(w, "           Hub: %s\n", c.stats.HubHost)
			}
			if c.stats.StateChanges > 0 {
				fmt.Fprintf(w, "           State changes: %d (last: %s)\n", c.stats.StateChanges, c.stats.LastState)
			}
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}

	if stats.Truncated != nil {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Warning: %v\n", stats.Truncated)
	}
}
