package firehose

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

// Jetstream connection metrics
var (
	wsConnectionAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skyweb_jetstream_connection_attempts_total",
		Help: "The total number of connection attempts to the Jetstream websocket",
	})

	wsConnectionErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skyweb_jetstream_connection_errors_total",
		Help: "The total number of connection errors encountered",
	})

	wsCurrentConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "skyweb_jetstream_current_connections",
		Help: "The current number of active Jetstream websocket connections",
	})

	wsConnectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "skyweb_jetstream_connection_duration_seconds",
		Help:    "Duration of Jetstream websocket connections",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10), // Start at 1s, double each bucket, 10 buckets
	})

	wsPingLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "skyweb_jetstream_ping_latency_seconds",
		Help:    "Latency of websocket ping/pong round trips",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 10), // Start at 1ms, double each bucket, 10 buckets
	})

	wsHostSwitches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skyweb_jetstream_host_switches_total",
		Help: "Number of times the connection switched to a different host",
	}, []string{"from_host", "to_host"})
)

const (
	wsReadBufferSize  = 1024 * 1024 // 1MB
	wsWriteBufferSize = 1024        // 1KB
	wsReadTimeout     = 60 * time.Second
	wsWriteTimeout    = 10 * time.Second
	wsPingInterval    = 30 * time.Second
)

// ErrNoHosts is returned when no Jetstream host is configured
var ErrNoHosts = errors.New("no jetstream hosts configured")

// JetstreamConfig holds configuration for the Jetstream connection
type JetstreamConfig struct {
	// Hosts are tried in order, moving to the next one on dial failures
	Hosts             []string
	WantedCollections []string
	WantedDids        []string
	Cursor            int64
	Compress          bool
	RequireHello      bool
	UserAgent         string
}

// RawMessage represents an unparsed message from the websocket
type RawMessage struct {
	MessageType int    // websocket.TextMessage or websocket.BinaryMessage
	Data        []byte // Raw message data
}

// SubscribeJetstream dials the configured hosts until one accepts the
// connection or ctx is done
func SubscribeJetstream(ctx context.Context, config JetstreamConfig) (*websocket.Conn, error) {
	log.WithFields(log.Fields{
		"hosts":      config.Hosts,
		"wantedDids": len(config.WantedDids),
		"cursor":     config.Cursor,
	}).Info("Subscribing to Jetstream")

	if len(config.Hosts) == 0 {
		return nil, ErrNoHosts
	}

	currentHostIdx := 0

	// Configure websocket dialer
	dialer := websocket.Dialer{
		ReadBufferSize:   wsReadBufferSize,
		WriteBufferSize:  wsWriteBufferSize,
		HandshakeTimeout: 45 * time.Second,
		NetDialContext: (&net.Dialer{
			Timeout:   45 * time.Second,
			KeepAlive: 45 * time.Second,
		}).DialContext,
	}

	// Set up exponential backoff for reconnection attempts
	backoff := backoff.NewExponentialBackOff()
	backoff.InitialInterval = 100 * time.Millisecond
	backoff.MaxInterval = 30 * time.Second
	backoff.Multiplier = 1.5
	backoff.MaxElapsedTime = 0 // Never stop retrying

	var conn *websocket.Conn

	// Connection loop with retry and failover logic
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
			currentHost := config.Hosts[currentHostIdx]

			// Build URL with query parameters
			u, err := url.Parse(fmt.Sprintf("%s/subscribe", currentHost))
			if err != nil {
				return nil, fmt.Errorf("failed to parse URL: %w", err)
			}

			q := u.Query()
			if len(config.WantedCollections) > 0 {
				for _, collection := range config.WantedCollections {
					q.Add("wantedCollections", collection)
				}
			}
			if len(config.WantedDids) > 0 {
				for _, did := range config.WantedDids {
					q.Add("wantedDids", did)
				}
			}
			if config.Cursor != 0 {
				q.Set("cursor", fmt.Sprintf("%d", config.Cursor))
			}
			if config.Compress {
				q.Set("compress", "true")
			}
			if config.RequireHello {
				q.Set("requireHello", "true")
			}
			u.RawQuery = q.Encode()

			// Set up headers
			headers := http.Header{}
			if config.UserAgent != "" {
				headers.Set("User-Agent", config.UserAgent)
			}

			if config.Compress {
				headers.Set("Accept-Encoding", "zstd")
			}

			wsConnectionAttempts.Inc()

			var dialErr error
			conn, _, dialErr = dialer.DialContext(ctx, u.String(), headers)

			if dialErr != nil {
				wsConnectionErrors.Inc()
				log.Errorf("Error connecting to Jetstream host %s: %s", currentHost, dialErr)

				// Try next host
				nextHostIdx := (currentHostIdx + 1) % len(config.Hosts)
				if nextHostIdx != currentHostIdx {
					wsHostSwitches.WithLabelValues(currentHost, config.Hosts[nextHostIdx]).Inc()
					log.Infof("Switching from host %s to %s", currentHost, config.Hosts[nextHostIdx])
					currentHostIdx = nextHostIdx
				}

				// Wait once every host has been tried
				if currentHostIdx == 0 {
					select {
					case <-ctx.Done():
						return nil, ctx.Err()
					case <-time.After(backoff.NextBackOff()):
					}
				}
				continue
			}

			// Reset backoff on successful connection
			backoff.Reset()

			// Set up connection handlers
			setupConnectionHandlers(conn)

			return conn, nil
		}
	}
}

// setupConnectionHandlers configures the websocket connection handlers
func setupConnectionHandlers(conn *websocket.Conn) {
	// Set initial deadlines
	conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))

	// Add connection close handler
	conn.SetCloseHandler(func(code int, text string) error {
		log.Infof("WebSocket connection closed with code %d: %s", code, text)
		return nil
	})

	// Set ping handler
	conn.SetPingHandler(func(appData string) error {
		log.Debug("Received ping from server")
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	// Set pong handler
	conn.SetPongHandler(func(appData string) error {
		log.Debug("Received pong from server")
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})
}

// managePingPong handles the ping/pong keepalive for the websocket connection
func managePingPong(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingStart := time.Now()
			log.Debug("Sending ping to check connection")

			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(wsWriteTimeout)); err != nil {
				log.Warn("Ping failed, closing connection for restart: ", err)
				wsConnectionErrors.Inc()
				conn.Close()
				return
			}

			// Measure ping latency when we receive the pong
			conn.SetPongHandler(func(appData string) error {
				wsPingLatency.Observe(time.Since(pingStart).Seconds())
				return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
			})

			// Reset read deadline after successful ping
			if err := conn.SetReadDeadline(time.Now().Add(wsReadTimeout)); err != nil {
				log.Warn("Failed to set read deadline, closing connection: ", err)
				wsConnectionErrors.Inc()
				conn.Close()
				return
			}
		}
	}
}

// StreamJetstream connects and forwards raw messages until ctx is done. When
// a connection drops it reconnects, resuming from the cursor returned by
// cursor() when that is non-zero.
func StreamJetstream(ctx context.Context, config JetstreamConfig, cursor func() int64, messages chan<- *RawMessage) error {
	for {
		if c := cursor(); c != 0 {
			config.Cursor = c
		}

		conn, err := SubscribeJetstream(ctx, config)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		readMessages(ctx, conn, messages)

		if ctx.Err() != nil {
			return nil
		}
		log.WithFields(log.Fields{
			"cursor": config.Cursor,
		}).Info("Jetstream connection lost, reconnecting")
	}
}

func readMessages(ctx context.Context, conn *websocket.Conn, messages chan<- *RawMessage) {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	wsCurrentConnections.Inc()
	connStart := time.Now()
	defer func() {
		wsConnectionDuration.Observe(time.Since(connStart).Seconds())
		wsCurrentConnections.Dec()
	}()

	go managePingPong(connCtx, conn)

	// Unblock ReadMessage when the context is cancelled
	go func() {
		<-connCtx.Done()
		conn.Close()
	}()

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Errorf("Unexpected websocket close: %v", err)
				}
				wsConnectionErrors.Inc()
			}
			return
		}

		select {
		case messages <- &RawMessage{MessageType: messageType, Data: message}:
		case <-ctx.Done():
			return
		}
	}
}
