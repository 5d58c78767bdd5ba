package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/knocktalk/relay/internal/hub"
	"github.com/knocktalk/relay/internal/messaging"
	"github.com/knocktalk/relay/internal/moderation"
	"github.com/knocktalk/relay/internal/protocol"
	"github.com/knocktalk/relay/internal/ratelimit"
	"github.com/knocktalk/relay/internal/ws"
)

func main() {
	config := ws.DefaultServerConfig()

	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		config.ListenAddr = addr
	}
	if v := os.Getenv("WORKER_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.WorkerPoolSize = n
		}
	}
	if v := os.Getenv("MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.MaxConnections = n
		}
	}
	if v := os.Getenv("READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.ReadTimeout = d
		}
	}
	if v := os.Getenv("WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.WriteTimeout = d
		}
	}
	if v := os.Getenv("HEARTBEAT_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Heartbeat.Interval = d
		}
	}
	if v := os.Getenv("HEARTBEAT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Heartbeat.Timeout = d
		}
	}

	hubConfig := hub.DefaultConfig()
	if v := os.Getenv("MESSAGE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			hubConfig.MessageTTL = d
		}
	}
	if v := os.Getenv("MAX_SESSION_MESSAGES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			hubConfig.MaxSessionMessages = n
		}
	}
	if v := os.Getenv("SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			hubConfig.SweepInterval = d
		}
	}
	if v := os.Getenv("REPORT_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			hubConfig.ReportThreshold = n
		}
	}

	// --- NATS (optional: empty NATS_URL runs the relay self-contained) ---
	var natsClient *messaging.Client
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		natsConfig := messaging.DefaultConfig()
		natsConfig.URL = natsURL
		var err error
		natsClient, err = messaging.NewClient(natsConfig)
		if err != nil {
			log.Fatalf("failed to connect to NATS: %v", err)
		}
	}

	// --- Redis (optional: empty REDIS_ADDR disables rate limiting) ---
	var limiter *ratelimit.Limiter
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rdb.Ping(ctx).Err(); err != nil {
			cancel()
			log.Fatalf("failed to connect to Redis: %v", err)
		}
		cancel()
		limiter = ratelimit.NewLimiter(rdb)
	}

	gate := moderation.NewFilter()

	log.Printf("knocktalk relay server starting")
	log.Printf("  listen_addr:      %s", config.ListenAddr)
	log.Printf("  worker_pool:      %d", config.WorkerPoolSize)
	log.Printf("  max_connections:  %d", config.MaxConnections)
	log.Printf("  message_ttl:      %s", hubConfig.MessageTTL)
	log.Printf("  session_messages: %d", hubConfig.MaxSessionMessages)
	log.Printf("  sweep_interval:   %s", hubConfig.SweepInterval)
	log.Printf("  report_threshold: %d", hubConfig.ReportThreshold)
	log.Printf("  redis_addr:       %q", redisAddr)
	log.Printf("  nats:             %v", natsClient != nil)

	// Declare server and core early so closures can capture them.
	var (
		server *ws.Server
		core   *hub.Hub
	)

	dispatcher := ws.NewMessageDispatcher(nil)

	// -----------------------------------------------------------------------
	// register — bind a profile to this connection
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeRegister, func(conn *ws.Connection, msg interface{}) {
		regMsg, ok := msg.(protocol.RegisterMsg)
		if !ok {
			return
		}

		// Profile gate: a rejected profile is never registered.
		if !gate.ApproveProfile(regMsg.Profile.Name) {
			log.Printf("register rejected by profile gate conn=%s", conn.ID)
			return
		}

		core.Register(conn.ID, server.SinkFor(conn), regMsg.Profile)
	})

	// -----------------------------------------------------------------------
	// search — filter the caller's visible users
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeSearch, func(conn *ws.Connection, msg interface{}) {
		searchMsg, ok := msg.(protocol.SearchMsg)
		if !ok {
			return
		}
		core.Search(conn.ID, searchMsg.Name, searchMsg.Gender, searchMsg.Country)
	})

	// -----------------------------------------------------------------------
	// knock_send — propose a session to another user
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeKnockSend, func(conn *ws.Connection, msg interface{}) {
		knockMsg, ok := msg.(protocol.KnockSendMsg)
		if !ok {
			return
		}

		if allowed, _ := limiter.Allow(context.Background(), conn.ID, ratelimit.RuleKnock); !allowed {
			log.Printf("knock_send rate limited conn=%s", conn.ID)
			return
		}

		core.KnockSend(conn.ID, knockMsg.TargetUserID)
	})

	// -----------------------------------------------------------------------
	// knock_accept — accept a knock, creating the session
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeKnockAccept, func(conn *ws.Connection, msg interface{}) {
		acceptMsg, ok := msg.(protocol.KnockAcceptMsg)
		if !ok {
			return
		}
		core.KnockAccept(conn.ID, acceptMsg.FromUserID)
	})

	// -----------------------------------------------------------------------
	// session_join — re-fetch a session descriptor after reconnecting
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeSessionJoin, func(conn *ws.Connection, msg interface{}) {
		joinMsg, ok := msg.(protocol.SessionJoinMsg)
		if !ok {
			return
		}
		core.SessionJoin(conn.ID, joinMsg.SessionID)
	})

	// -----------------------------------------------------------------------
	// session_close — destroy a session, notifying both participants
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeSessionClose, func(conn *ws.Connection, msg interface{}) {
		closeMsg, ok := msg.(protocol.SessionCloseMsg)
		if !ok {
			return
		}
		core.SessionClose(conn.ID, closeMsg.SessionID)
	})

	// -----------------------------------------------------------------------
	// message_send — relay a message into a session
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeMessageSend, func(conn *ws.Connection, msg interface{}) {
		sendMsg, ok := msg.(protocol.MessageSendMsg)
		if !ok {
			return
		}

		if allowed, _ := limiter.Allow(context.Background(), conn.ID, ratelimit.RuleMessage); !allowed {
			log.Printf("message_send rate limited conn=%s", conn.ID)
			return
		}

		core.MessageSend(conn.ID, sendMsg.SessionID, sendMsg.Payload, sendMsg.Kind, sendMsg.Metadata)
	})

	// -----------------------------------------------------------------------
	// messages_get — list the non-expired messages of a session
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeMessagesGet, func(conn *ws.Connection, msg interface{}) {
		getMsg, ok := msg.(protocol.MessagesGetMsg)
		if !ok {
			return
		}
		core.MessagesGet(conn.ID, getMsg.SessionID)
	})

	// -----------------------------------------------------------------------
	// user_report — report a user; the threshold triggers the ban cascade
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeUserReport, func(conn *ws.Connection, msg interface{}) {
		reportMsg, ok := msg.(protocol.UserReportMsg)
		if !ok {
			return
		}
		core.Report(conn.ID, reportMsg.TargetUserID)
	})

	// -----------------------------------------------------------------------
	// user_block — hide both parties from each other, close any shared session
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeUserBlock, func(conn *ws.Connection, msg interface{}) {
		blockMsg, ok := msg.(protocol.UserBlockMsg)
		if !ok {
			return
		}
		core.Block(conn.ID, blockMsg.TargetUserID)
	})

	// -----------------------------------------------------------------------
	// feedback — forward opaquely to the feedback service
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeFeedback, func(conn *ws.Connection, msg interface{}) {
		fbMsg, ok := msg.(protocol.FeedbackMsg)
		if !ok || fbMsg.Text == "" {
			return
		}
		if natsClient != nil {
			natsClient.PublishFeedback(conn.ID, fbMsg.Text)
		}
	})

	server = ws.NewServer(config, dispatcher.Dispatch)
	dispatcher.SetServer(server)

	var events hub.Events
	if natsClient != nil {
		events = natsClient
	}
	core = hub.New(hubConfig,
		func() int { return server.Connections().Count() },
		server.BroadcastEvent,
		events,
	)

	// Connection lifecycle: every connect/disconnect rebroadcasts the
	// unfiltered presence counts; disconnect additionally runs the cascading
	// cleanup before presence lists go out.
	server.SetOnConnect(func(connID string) {
		core.BroadcastPresenceCount()
	})
	server.SetOnDisconnect(func(connID string) {
		core.Disconnect(connID)
		core.BroadcastPresenceCount()
	})

	// Expiry sweeper.
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	go core.StartSweeper(sweepCtx)

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, initiating graceful shutdown...", sig)
		stopSweeper()
		if natsClient != nil {
			natsClient.Close()
		}
		if err := server.Shutdown(); err != nil {
			log.Printf("shutdown error: %v", err)
		}
		os.Exit(0)
	}()

	if err := server.Start(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
