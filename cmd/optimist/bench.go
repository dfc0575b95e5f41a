package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"runtime/debug"
	"runtime/metrics"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/optimist-go/optimist"
	"github.com/optimist-go/optimist/internal/errors"
	"github.com/optimist-go/optimist/pkg/protocol"
)

const gib = int64(1024 * 1024 * 1024)

type profile struct {
	Name          string
	Sessions      int
	Duration      time.Duration
	RPS           float64
	PayloadBytes  int
	MaxProcs      int
	MemLimitBytes int64
}

var profiles = map[string]profile{
	"fast": {
		Name:         "fast",
		Sessions:     20,
		Duration:     5 * time.Second,
		RPS:          10,
		PayloadBytes: 24,
	},
	"standard": {
		Name:         "standard",
		Sessions:     100,
		Duration:     30 * time.Second,
		RPS:          20,
		PayloadBytes: 24,
	},
	"stress": {
		Name:          "stress",
		Sessions:      400,
		Duration:      60 * time.Second,
		RPS:           50,
		PayloadBytes:  64,
		MaxProcs:      4,
		MemLimitBytes: 2 * gib,
	},
}

type benchConfig struct {
	URL           string
	Profile       string
	Sessions      int
	Duration      time.Duration
	RPS           float64
	PayloadBytes  int
	MaxProcs      int
	MemLimitBytes int64
	JSONOutput    string
	AckTimeout    time.Duration
}

type benchCounters struct {
	setsSent    atomic.Uint64
	setsAcked   atomic.Uint64
	setBytes    atomic.Uint64
	stateBytes  atomic.Uint64
	stateFrames atomic.Uint64
}

type benchErrors struct {
	handshakeFailures   atomic.Uint64
	setWriteFailures    atomic.Uint64
	frameDecodeFailures atomic.Uint64
	serverErrorFrames   atomic.Uint64
	ackMissing          atomic.Uint64
	totalErrors         atomic.Uint64
}

func benchCmd() *cobra.Command {
	var (
		url          string
		profileName  string
		sessions     int
		duration     string
		rps          float64
		payloadBytes int
		maxProcs     int
		memLimit     string
		jsonOut      string
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark a sync server",
		Long: `Drive concurrent WebSocket sessions against a sync server and report
write round-trip latency, throughput and runtime cost.

Each session subscribes to its own key and issues optimistic writes at
the target rate, timing every write from the set frame to its ack. With
no --url the benchmark hosts a server in-process on a loopback port.

The human-readable summary goes to stderr; the JSON report goes to
stdout (or --json PATH).

Examples:
  optimist bench
  optimist bench --profile stress
  optimist bench --url ws://staging:8080/sync --sessions 50 --duration 1m`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveBenchConfig(url, profileName, sessions, duration, rps, payloadBytes, maxProcs, memLimit, jsonOut)
			if err != nil {
				return err
			}
			return runBench(cfg)
		},
	}

	cmd.Flags().StringVarP(&url, "url", "u", "", "ws:// URL of a running /sync endpoint (empty: self-hosted)")
	cmd.Flags().StringVarP(&profileName, "profile", "p", "standard", "Profile: fast|standard|stress")
	cmd.Flags().IntVar(&sessions, "sessions", -1, "Number of concurrent sessions")
	cmd.Flags().StringVar(&duration, "duration", "", "Benchmark duration, e.g. 30s")
	cmd.Flags().Float64Var(&rps, "rps", -1, "Target writes/sec per session")
	cmd.Flags().IntVar(&payloadBytes, "payload-bytes", -1, "Bytes of payload per write")
	cmd.Flags().IntVar(&maxProcs, "max-procs", -1, "GOMAXPROCS cap (0 to leave unchanged)")
	cmd.Flags().StringVar(&memLimit, "mem-limit", "", "GOMEMLIMIT (e.g. 2GiB)")
	cmd.Flags().StringVar(&jsonOut, "json", "-", "JSON report path ('-' for stdout)")

	return cmd
}

func resolveBenchConfig(url, profileName string, sessions int, duration string, rps float64, payloadBytes, maxProcs int, memLimit, jsonOut string) (benchConfig, error) {
	name := strings.ToLower(strings.TrimSpace(profileName))
	if name == "" {
		name = "standard"
	}

	base, ok := profiles[name]
	if !ok {
		return benchConfig{}, fmt.Errorf("unknown profile %q (want fast, standard or stress)", name)
	}

	cfg := benchConfig{
		URL:           normalizeSyncURL(url),
		Profile:       base.Name,
		Sessions:      base.Sessions,
		Duration:      base.Duration,
		RPS:           base.RPS,
		PayloadBytes:  base.PayloadBytes,
		MaxProcs:      base.MaxProcs,
		MemLimitBytes: base.MemLimitBytes,
		JSONOutput:    strings.TrimSpace(jsonOut),
	}

	if sessions != -1 {
		cfg.Sessions = sessions
	}
	if duration != "" {
		d, err := time.ParseDuration(duration)
		if err != nil {
			return benchConfig{}, fmt.Errorf("invalid --duration: %w", err)
		}
		cfg.Duration = d
	}
	if rps != -1 {
		cfg.RPS = rps
	}
	if payloadBytes != -1 {
		cfg.PayloadBytes = payloadBytes
	}
	if maxProcs != -1 {
		cfg.MaxProcs = maxProcs
	}
	if memLimit != "" {
		limit, err := parseBytes(memLimit)
		if err != nil {
			return benchConfig{}, fmt.Errorf("invalid --mem-limit: %w", err)
		}
		cfg.MemLimitBytes = limit
	}
	if cfg.JSONOutput == "" {
		cfg.JSONOutput = "-"
	}

	if cfg.Sessions <= 0 {
		return benchConfig{}, stderrors.New("--sessions must be > 0")
	}
	if cfg.Duration <= 0 {
		return benchConfig{}, stderrors.New("--duration must be > 0")
	}
	if cfg.RPS <= 0 {
		return benchConfig{}, stderrors.New("--rps must be > 0")
	}
	if cfg.PayloadBytes <= 0 {
		return benchConfig{}, stderrors.New("--payload-bytes must be > 0")
	}
	if cfg.MaxProcs < 0 {
		return benchConfig{}, stderrors.New("--max-procs must be >= 0")
	}
	if cfg.MemLimitBytes < 0 {
		return benchConfig{}, stderrors.New("--mem-limit must be >= 0")
	}

	cfg.AckTimeout = ackTimeout(cfg.RPS)
	return cfg, nil
}

// normalizeSyncURL maps http(s) schemes onto their WebSocket equivalents so
// a pasted server URL works as-is.
func normalizeSyncURL(url string) string {
	url = strings.TrimSpace(url)
	switch {
	case strings.HasPrefix(url, "https://"):
		return "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		return "ws://" + strings.TrimPrefix(url, "http://")
	}
	return url
}

// ackTimeout bounds how long one write may wait for its ack: ten write
// periods, but never under two seconds.
func ackTimeout(rps float64) time.Duration {
	if rps <= 0 {
		return 0
	}
	period := time.Duration(float64(time.Second) / rps)
	timeout := period * 10
	if timeout < 2*time.Second {
		timeout = 2 * time.Second
	}
	return timeout
}

func parseBytes(input string) (int64, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return 0, stderrors.New("empty size")
	}

	var i int
	for i < len(s) {
		c := s[i]
		if (c >= '0' && c <= '9') || c == '.' {
			i++
			continue
		}
		break
	}
	if i == 0 {
		return 0, fmt.Errorf("invalid size %q", input)
	}

	numPart := strings.TrimSpace(s[:i])
	suffix := strings.ToLower(strings.TrimSpace(s[i:]))

	value, err := strconv.ParseFloat(numPart, 64)
	if err != nil {
		return 0, err
	}

	multiplier := float64(1)
	switch suffix {
	case "", "b":
		multiplier = 1
	case "kb":
		multiplier = 1e3
	case "mb":
		multiplier = 1e6
	case "gb":
		multiplier = 1e9
	case "tb":
		multiplier = 1e12
	case "kib":
		multiplier = 1024
	case "mib":
		multiplier = 1024 * 1024
	case "gib":
		multiplier = 1024 * 1024 * 1024
	case "tib":
		multiplier = 1024 * 1024 * 1024 * 1024
	default:
		return 0, fmt.Errorf("unknown size suffix %q", suffix)
	}

	bytes := value * multiplier
	if bytes < 0 {
		return 0, fmt.Errorf("invalid size %q", input)
	}

	return int64(bytes + 0.5), nil
}

func runBench(cfg benchConfig) error {
	if cfg.MaxProcs > 0 {
		runtime.GOMAXPROCS(cfg.MaxProcs)
	}
	if cfg.MemLimitBytes > 0 {
		debug.SetMemoryLimit(cfg.MemLimitBytes)
	}
	debug.SetGCPercent(100)

	target := cfg.URL
	selfHosted := target == ""
	if selfHosted {
		app := optimist.New(optimist.Config{
			Sync: optimist.SyncConfig{
				MaxSessions: cfg.Sessions + 16,
				CheckOrigin: func(*http.Request) bool { return true },
			},
			Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		})

		ln, err := net.Listen("tcp4", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}

		httpServer := &http.Server{Handler: app}
		go func() {
			_ = httpServer.Serve(ln)
		}()
		defer func() {
			_ = httpServer.Shutdown(context.Background())
			_ = app.Shutdown(context.Background())
		}()

		target = "ws://" + ln.Addr().String() + "/sync"
	} else {
		// Pre-flight so an unreachable target fails with a diagnosis
		// instead of a wall of per-session dial errors.
		conn, _, err := websocket.DefaultDialer.Dial(target, nil)
		if err != nil {
			return errors.New("E061").
				WithDetail(err.Error()).
				WithSuggestion("Check the server is running and --url points at its /sync endpoint").
				Wrap(err)
		}
		_ = conn.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	samplesCh := make(chan time.Duration, sampleBuffer(cfg.Sessions))
	var samples []time.Duration
	var samplesMu sync.Mutex
	collectorDone := make(chan struct{})
	go func() {
		defer close(collectorDone)
		for rtt := range samplesCh {
			samplesMu.Lock()
			samples = append(samples, rtt)
			samplesMu.Unlock()
		}
	}()

	var counters benchCounters
	var errCounts benchErrors

	var before runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	beforeMetrics := readRuntimeMetrics()

	start := time.Now()

	progressDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-progressDone:
				return
			case <-ticker.C:
				fmt.Fprintf(os.Stderr, "  %s elapsed: %d writes acked, %d errors\n",
					time.Since(start).Round(time.Second),
					counters.setsAcked.Load(),
					errCounts.totalErrors.Load())
			}
		}
	}()

	var wg sync.WaitGroup
	wg.Add(cfg.Sessions)
	for i := 0; i < cfg.Sessions; i++ {
		sessionID := i
		go func() {
			defer wg.Done()
			if err := runSession(ctx, target, sessionID, cfg, &counters, &errCounts, samplesCh); err != nil {
				errCounts.totalErrors.Add(1)
			}
		}()
	}

	wg.Wait()
	close(progressDone)
	close(samplesCh)
	<-collectorDone

	elapsed := time.Since(start)

	var after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&after)
	afterMetrics := readRuntimeMetrics()

	samplesMu.Lock()
	latencies := append([]time.Duration(nil), samples...)
	samplesMu.Unlock()
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	report := buildReport(cfg, selfHosted, elapsed, latencies, &counters, &errCounts, before, after, beforeMetrics, afterMetrics)

	writeSummary(os.Stderr, report)
	if err := writeJSON(cfg.JSONOutput, report); err != nil {
		return fmt.Errorf("write json: %w", err)
	}
	return nil
}

func sampleBuffer(sessions int) int {
	if sessions < 1 {
		return 1024
	}
	buf := sessions * 4
	if buf < 1024 {
		buf = 1024
	}
	return buf
}

func runSession(
	ctx context.Context,
	wsURL string,
	sessionID int,
	cfg benchConfig,
	counters *benchCounters,
	errCounts *benchErrors,
	samples chan<- time.Duration,
) error {
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		errCounts.handshakeFailures.Add(1)
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	if err := writeFrame(conn, protocol.NewHello()); err != nil {
		errCounts.handshakeFailures.Add(1)
		return fmt.Errorf("hello write: %w", err)
	}

	// Subscribing to its own key makes every write come back as a state
	// frame ahead of its ack, so the fanout path is part of the RTT.
	key := "bench:session:" + strconv.Itoa(sessionID)
	if err := writeFrame(conn, protocol.NewSub(key)); err != nil {
		errCounts.handshakeFailures.Add(1)
		return fmt.Errorf("sub write: %w", err)
	}

	period := time.Duration(float64(time.Second) / cfg.RPS)
	var seq uint64

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		seq++
		value := makePayload(sessionID, seq, cfg.PayloadBytes)

		start := time.Now()

		data, err := protocol.Encode(protocol.NewSet(key, value, seq))
		if err != nil {
			return fmt.Errorf("encode set: %w", err)
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			errCounts.setWriteFailures.Add(1)
			return fmt.Errorf("set write: %w", err)
		}

		counters.setsSent.Add(1)
		counters.setBytes.Add(uint64(len(data)))

		if cfg.AckTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(cfg.AckTimeout))
		}
		if err := awaitAck(conn, seq, counters, errCounts); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if isTimeout(err) {
				errCounts.ackMissing.Add(1)
				return fmt.Errorf("ack for seq %d not received", seq)
			}
			return fmt.Errorf("await ack: %w", err)
		}

		rtt := time.Since(start)
		counters.setsAcked.Add(1)
		samples <- rtt

		if sleep := period - time.Since(start); sleep > 0 {
			timer := time.NewTimer(sleep)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil
			case <-timer.C:
			}
		}
	}
}

// awaitAck reads frames until the ack for seq arrives, counting the state
// fanout frames that precede it.
func awaitAck(conn *websocket.Conn, seq uint64, counters *benchCounters, errCounts *benchErrors) error {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		m, err := protocol.Decode(msg)
		if err != nil {
			errCounts.frameDecodeFailures.Add(1)
			return err
		}

		switch m.T {
		case protocol.MsgAck:
			if m.Seq == seq {
				return nil
			}

		case protocol.MsgState:
			counters.stateFrames.Add(1)
			counters.stateBytes.Add(uint64(len(msg)))

		case protocol.MsgError:
			errCounts.serverErrorFrames.Add(1)
			return fmt.Errorf("server error frame: %s", m.Msg)

		default:
			// pong and gone are irrelevant here.
		}
	}
}

func writeFrame(conn *websocket.Conn, m *protocol.Message) error {
	data, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// makePayload builds a deterministic JSON string value of payloadBytes
// characters, unique per session and sequence number.
func makePayload(sessionID int, seq uint64, payloadBytes int) json.RawMessage {
	seed := (uint64(sessionID) << 32) ^ seq
	base := strconv.FormatUint(seed, 36)
	if len(base) > payloadBytes {
		base = base[len(base)-payloadBytes:]
	} else if len(base) < payloadBytes {
		base += strings.Repeat("x", payloadBytes-len(base))
	}
	return json.RawMessage(strconv.Quote(base))
}

func isTimeout(err error) bool {
	var netErr net.Error
	if stderrors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

type runtimeMetricsSnapshot struct {
	cpuTotalSeconds float64
	cpuGCSeconds    float64

	heapAllocsBytes   uint64
	heapAllocsObjects uint64
}

func readRuntimeMetrics() runtimeMetricsSnapshot {
	samples := []metrics.Sample{
		{Name: "/cpu/classes/total:cpu-seconds"},
		{Name: "/cpu/classes/gc/total:cpu-seconds"},
		{Name: "/gc/heap/allocs:bytes"},
		{Name: "/gc/heap/allocs:objects"},
	}
	metrics.Read(samples)

	var out runtimeMetricsSnapshot
	for _, s := range samples {
		switch s.Name {
		case "/cpu/classes/total:cpu-seconds":
			out.cpuTotalSeconds = s.Value.Float64()
		case "/cpu/classes/gc/total:cpu-seconds":
			out.cpuGCSeconds = s.Value.Float64()
		case "/gc/heap/allocs:bytes":
			out.heapAllocsBytes = s.Value.Uint64()
		case "/gc/heap/allocs:objects":
			out.heapAllocsObjects = s.Value.Uint64()
		}
	}
	return out
}

func cpuFraction(after, before runtimeMetricsSnapshot) float64 {
	total := after.cpuTotalSeconds - before.cpuTotalSeconds
	if total <= 0 {
		return 0
	}
	gc := after.cpuGCSeconds - before.cpuGCSeconds
	if gc < 0 {
		return 0
	}
	return gc / total
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	idx := int(math.Ceil(float64(len(sorted))*p)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func avgPause(after, before runtime.MemStats) time.Duration {
	gcCount := after.NumGC - before.NumGC
	if gcCount == 0 {
		return 0
	}
	return time.Duration((after.PauseTotalNs - before.PauseTotalNs) / uint64(gcCount))
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

type benchReport struct {
	Version    string         `json:"version"`
	Run        runInfo        `json:"run"`
	Workload   workloadInfo   `json:"workload"`
	LatencyMS  latencyInfo    `json:"latency_ms"`
	Throughput throughputInfo `json:"throughput"`
	GC         gcInfo         `json:"gc"`
	Protocol   protocolInfo   `json:"protocol"`
	Errors     errorInfo      `json:"errors"`
}

type runInfo struct {
	Timestamp string `json:"timestamp"`
	Go        string `json:"go"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	CPUCount  int    `json:"cpu_count"`
	GitCommit string `json:"git_commit,omitempty"`
}

type workloadInfo struct {
	Target        string  `json:"target"`
	Profile       string  `json:"profile"`
	Sessions      int     `json:"sessions"`
	DurationMS    int64   `json:"duration_ms"`
	RPSPerSession float64 `json:"rps_per_session"`
	PayloadBytes  int     `json:"payload_bytes"`
	MaxProcs      int     `json:"max_procs"`
	MemLimitBytes int64   `json:"mem_limit_bytes"`
	AckTimeoutMS  int64   `json:"ack_timeout_ms"`
}

type latencyInfo struct {
	Min float64 `json:"min"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
	Max float64 `json:"max"`
}

type throughputInfo struct {
	WritesTotal        uint64  `json:"writes_total"`
	WritesPerSec       float64 `json:"writes_per_sec"`
	WritesPerSecPerSes float64 `json:"writes_per_sec_per_session"`
}

type gcInfo struct {
	AllocMB       float64 `json:"alloc_mb"`
	HeapLiveMB    float64 `json:"heap_live_mb"`
	NumGC         uint32  `json:"num_gc"`
	PauseTotalMS  float64 `json:"pause_total_ms"`
	PauseAvgMS    float64 `json:"pause_avg_ms"`
	GCCPUFraction float64 `json:"gc_cpu_fraction"`
	AllocsObjects uint64  `json:"allocs_objects"`
}

type protocolInfo struct {
	SetBytesTotal   uint64  `json:"set_bytes_total"`
	StateBytesTotal uint64  `json:"state_bytes_total"`
	StateFrames     uint64  `json:"state_frames_total"`
	AvgSetBytes     float64 `json:"avg_set_bytes"`
	AvgStateBytes   float64 `json:"avg_state_bytes"`
	StatesPerWrite  float64 `json:"states_per_write"`
}

type errorInfo struct {
	TotalErrors         uint64 `json:"total_errors"`
	HandshakeFailures   uint64 `json:"handshake_failures"`
	SetWriteFailures    uint64 `json:"set_write_failures"`
	FrameDecodeFailures uint64 `json:"frame_decode_failures"`
	ServerErrorFrames   uint64 `json:"server_error_frames"`
	AckMissing          uint64 `json:"ack_missing"`
}

func buildReport(
	cfg benchConfig,
	selfHosted bool,
	elapsed time.Duration,
	latencies []time.Duration,
	counters *benchCounters,
	errCounts *benchErrors,
	before runtime.MemStats,
	after runtime.MemStats,
	beforeMetrics runtimeMetricsSnapshot,
	afterMetrics runtimeMetricsSnapshot,
) benchReport {
	writesTotal := counters.setsAcked.Load()
	setsSent := counters.setsSent.Load()
	stateFrames := counters.stateFrames.Load()
	setBytes := counters.setBytes.Load()
	stateBytes := counters.stateBytes.Load()

	elapsedSeconds := math.Max(0.001, elapsed.Seconds())
	writesPerSec := float64(writesTotal) / elapsedSeconds
	writesPerSession := writesPerSec / float64(cfg.Sessions)

	latency := latencyInfo{}
	if len(latencies) > 0 {
		latency = latencyInfo{
			Min: ms(latencies[0]),
			P50: ms(percentile(latencies, 0.50)),
			P95: ms(percentile(latencies, 0.95)),
			P99: ms(percentile(latencies, 0.99)),
			Max: ms(latencies[len(latencies)-1]),
		}
	}

	avgSetBytes := 0.0
	if setsSent > 0 {
		avgSetBytes = float64(setBytes) / float64(setsSent)
	}
	avgStateBytes := 0.0
	if stateFrames > 0 {
		avgStateBytes = float64(stateBytes) / float64(stateFrames)
	}
	statesPerWrite := 0.0
	if writesTotal > 0 {
		statesPerWrite = float64(stateFrames) / float64(writesTotal)
	}

	target := cfg.URL
	if selfHosted {
		target = "self-hosted"
	}

	pauseTotal := time.Duration(after.PauseTotalNs - before.PauseTotalNs)
	pauseAvg := avgPause(after, before)

	return benchReport{
		Version: "1",
		Run: runInfo{
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			Go:        runtime.Version(),
			OS:        runtime.GOOS,
			Arch:      runtime.GOARCH,
			CPUCount:  runtime.NumCPU(),
			GitCommit: gitCommit(),
		},
		Workload: workloadInfo{
			Target:        target,
			Profile:       cfg.Profile,
			Sessions:      cfg.Sessions,
			DurationMS:    cfg.Duration.Milliseconds(),
			RPSPerSession: cfg.RPS,
			PayloadBytes:  cfg.PayloadBytes,
			MaxProcs:      cfg.MaxProcs,
			MemLimitBytes: cfg.MemLimitBytes,
			AckTimeoutMS:  cfg.AckTimeout.Milliseconds(),
		},
		LatencyMS: latency,
		Throughput: throughputInfo{
			WritesTotal:        writesTotal,
			WritesPerSec:       writesPerSec,
			WritesPerSecPerSes: writesPerSession,
		},
		GC: gcInfo{
			AllocMB:       float64(after.TotalAlloc-before.TotalAlloc) / (1024 * 1024),
			HeapLiveMB:    float64(after.HeapAlloc) / (1024 * 1024),
			NumGC:         after.NumGC - before.NumGC,
			PauseTotalMS:  ms(pauseTotal),
			PauseAvgMS:    ms(pauseAvg),
			GCCPUFraction: cpuFraction(afterMetrics, beforeMetrics),
			AllocsObjects: afterMetrics.heapAllocsObjects - beforeMetrics.heapAllocsObjects,
		},
		Protocol: protocolInfo{
			SetBytesTotal:   setBytes,
			StateBytesTotal: stateBytes,
			StateFrames:     stateFrames,
			AvgSetBytes:     avgSetBytes,
			AvgStateBytes:   avgStateBytes,
			StatesPerWrite:  statesPerWrite,
		},
		Errors: errorInfo{
			TotalErrors:         errCounts.totalErrors.Load(),
			HandshakeFailures:   errCounts.handshakeFailures.Load(),
			SetWriteFailures:    errCounts.setWriteFailures.Load(),
			FrameDecodeFailures: errCounts.frameDecodeFailures.Load(),
			ServerErrorFrames:   errCounts.serverErrorFrames.Load(),
			AckMissing:          errCounts.ackMissing.Load(),
		},
	}
}

func writeSummary(w io.Writer, report benchReport) {
	fmt.Fprintln(w, "=== Optimist Sync Benchmark ===")
	fmt.Fprintf(w, "Target: %s\n", report.Workload.Target)
	fmt.Fprintf(w, "Profile: %s\n", report.Workload.Profile)
	fmt.Fprintf(w, "Sessions: %d\n", report.Workload.Sessions)
	fmt.Fprintf(w, "Duration: %s\n", time.Duration(report.Workload.DurationMS)*time.Millisecond)
	fmt.Fprintf(w, "Target per-session rate: %.2f writes/s\n", report.Workload.RPSPerSession)
	fmt.Fprintf(w, "Payload bytes: %d\n", report.Workload.PayloadBytes)
	if report.Workload.MaxProcs > 0 {
		fmt.Fprintf(w, "GOMAXPROCS cap: %d\n", report.Workload.MaxProcs)
	}
	if report.Workload.MemLimitBytes > 0 {
		fmt.Fprintf(w, "GOMEMLIMIT cap: %.2f GiB\n", float64(report.Workload.MemLimitBytes)/float64(gib))
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Total writes: %d\n", report.Throughput.WritesTotal)
	fmt.Fprintf(w, "Throughput: %.1f writes/s (%.2f per session)\n", report.Throughput.WritesPerSec, report.Throughput.WritesPerSecPerSes)
	fmt.Fprintf(w, "Errors: %d\n", report.Errors.TotalErrors)
	fmt.Fprintln(w)

	if report.LatencyMS.Max == 0 {
		fmt.Fprintln(w, "No latency samples recorded.")
	} else {
		fmt.Fprintln(w, "RTT (set frame -> fanout -> ack receive+decode):")
		fmt.Fprintf(w, "  min: %.2f ms\n", report.LatencyMS.Min)
		fmt.Fprintf(w, "  p50: %.2f ms\n", report.LatencyMS.P50)
		fmt.Fprintf(w, "  p95: %.2f ms\n", report.LatencyMS.P95)
		fmt.Fprintf(w, "  p99: %.2f ms\n", report.LatencyMS.P99)
		fmt.Fprintf(w, "  max: %.2f ms\n", report.LatencyMS.Max)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Protocol (avg per write):")
	fmt.Fprintf(w, "  set bytes:   %.1f\n", report.Protocol.AvgSetBytes)
	fmt.Fprintf(w, "  state bytes: %.1f\n", report.Protocol.AvgStateBytes)
	fmt.Fprintf(w, "  states/write: %.2f\n", report.Protocol.StatesPerWrite)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Go runtime / GC (process-wide):")
	fmt.Fprintf(w, "  alloc:     %.2f MB\n", report.GC.AllocMB)
	fmt.Fprintf(w, "  heap_live: %.2f MB\n", report.GC.HeapLiveMB)
	fmt.Fprintf(w, "  num_gc:    %d\n", report.GC.NumGC)
	fmt.Fprintf(w, "  gc_pause:  %.2f ms (total)\n", report.GC.PauseTotalMS)
	fmt.Fprintf(w, "  gc_pause:  %.2f ms (avg)\n", report.GC.PauseAvgMS)
	fmt.Fprintf(w, "  gc_cpu:    %.2f%%\n", report.GC.GCCPUFraction*100)
}

func writeJSON(path string, report benchReport) error {
	var out io.Writer
	if path == "-" {
		out = os.Stdout
	} else {
		file, err := os.Create(path)
		if err != nil {
			return err
		}
		defer file.Close()
		out = file
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func gitCommit() string {
	if val := strings.TrimSpace(os.Getenv("OPTIMIST_GIT_COMMIT")); val != "" {
		return val
	}
	if val := strings.TrimSpace(os.Getenv("GIT_COMMIT")); val != "" {
		return val
	}
	cmd := exec.Command("git", "rev-parse", "HEAD")
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
