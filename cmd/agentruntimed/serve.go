// serve.go assembles and runs every subsystem. Construction order matters:
// the broker handshake happens before the environment scrub, channel
// adapters read their tokens before the scrub, and the dispatcher is
// sealed before the gateway accepts its first connection.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/nexuscore/agentrt/internal/approval"
	"github.com/nexuscore/agentrt/internal/broker"
	"github.com/nexuscore/agentrt/internal/browser"
	"github.com/nexuscore/agentrt/internal/bus"
	"github.com/nexuscore/agentrt/internal/channels"
	"github.com/nexuscore/agentrt/internal/chatsession"
	"github.com/nexuscore/agentrt/internal/config"
	"github.com/nexuscore/agentrt/internal/dispatcher"
	"github.com/nexuscore/agentrt/internal/gateway"
	"github.com/nexuscore/agentrt/internal/kvstore"
	"github.com/nexuscore/agentrt/internal/loop"
	"github.com/nexuscore/agentrt/internal/methods"
	"github.com/nexuscore/agentrt/internal/observability"
	"github.com/nexuscore/agentrt/internal/queue"
	"github.com/nexuscore/agentrt/internal/rterr"
	"github.com/nexuscore/agentrt/internal/signer"
	"github.com/nexuscore/agentrt/internal/skills"
	"github.com/nexuscore/agentrt/internal/ssrf"
	"github.com/nexuscore/agentrt/internal/subagent"
	"github.com/nexuscore/agentrt/internal/workspace"
	"github.com/nexuscore/agentrt/pkg/models"
)

func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := buildLogger(cfg.Logging, debug)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, shutdownTracing := observability.NewTracerProvider(observability.TraceConfig{
		ServiceName:    "agentruntimed",
		ServiceVersion: version,
	})
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	// Broker handshake first. An unreachable broker is degraded mode, not a
	// startup failure: credential-backed operations return typed errors
	// until the broker comes back.
	var brokerClient *broker.Client
	dialCtx, cancelDial := context.WithTimeout(ctx, 5*time.Second)
	brokerClient, err = broker.Dial(dialCtx, cfg.Broker.SocketPath)
	cancelDial()
	if err != nil {
		logger.Warn("secrets broker unreachable; running degraded", "socket", cfg.Broker.SocketPath, "error", err)
		brokerClient = nil
	} else {
		defer brokerClient.Close()
	}

	// Channel adapters and the local-signer fallback read their material
	// from the environment now, before the scrub removes it.
	chRegistry := buildChannels(cfg, logger)
	localSigningKey := os.Getenv("AGENT_PRIVATE_KEY")

	// Everything the runtime needs from the sensitive environment has been
	// read; from here on no handler can observe a credential.
	scrubEnvironment(cfg.Broker.ScrubEnv, logger)

	store, err := buildStore(cfg.KVStore)
	if err != nil {
		return fmt.Errorf("kvstore: %w", err)
	}
	defer store.Close()

	jail, err := workspace.New(cfg.Workspace.Root, cfg.Workspace.MaxFileSize)
	if err != nil {
		return fmt.Errorf("workspace: %w", err)
	}

	promReg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(promReg)

	ssrf.AddBlockedHostnames(cfg.Network.Denylist...)
	fetcher := ssrf.NewLimiterWith(
		cfg.Network.RateLimitPerHost, 0,
		cfg.Network.MaxResponseBytes,
		cfg.Network.FetchTimeout,
	)

	eventBus := bus.New(cfg.Bus.SubscriberQueueSize)

	sup := subagent.New(subagent.Config{
		ConcurrencyCap:  cfg.Subagent.ConcurrencyCap,
		StartupDeadline: cfg.Subagent.StartupDeadline,
		StopGrace:       cfg.Subagent.StopGrace,
		EnvAllowlist:    cfg.Subagent.EnvAllowlist,
	}, brokerClient, jail, logger.With("component", "subagent"))

	notifier := channels.NewApprovalNotifier(chRegistry)
	approvals := approval.NewManager(approval.Policy{
		Whitelist:     cfg.Approval.Whitelist,
		PerTxCap:      cfg.Approval.PerTxCapWei,
		DailyCap:      cfg.Approval.DailyCapWei,
		DefaultTTL:    cfg.Approval.DefaultTTL,
		SweepInterval: cfg.Approval.SweepInterval,
	}, notifier)
	go approvals.Run(ctx)

	var embedder skills.Embedder
	if brokerClient != nil && brokerClient.HasCapability(broker.CapEmbed) {
		embedder = &brokerEmbedder{client: brokerClient}
	}
	skillsCfg := skills.Config{
		Embedder:          embedder,
		Fetcher:           fetcher,
		Bus:               eventBus,
		MinCommunityStake: cfg.Skills.MinCommunityStake,
		Loader:            skills.AuditLoader{MaxContentBytes: cfg.Skills.MaxInstallBytes},
	}
	if cfg.Skills.OnChainEndpoint != "" {
		skillsCfg.OnChain = &skills.OnChainIndexer{Endpoint: cfg.Skills.OnChainEndpoint, Fetcher: fetcher}
	}
	if cfg.Skills.RemoteEndpoint != "" {
		skillsCfg.Remote = &skills.HTTPLookup{Endpoint: cfg.Skills.RemoteEndpoint}
	}
	skillRegistry := skills.New(skillsCfg, nil)
	if cfg.Skills.WatchDir != "" {
		watcher := skills.NewWatcher(cfg.Skills.WatchDir, skillRegistry, 0, logger.With("component", "skills-watcher"))
		if err := watcher.Start(ctx); err != nil {
			logger.Warn("skill watcher failed to start", "dir", cfg.Skills.WatchDir, "error", err)
		} else {
			defer watcher.Close()
		}
	}

	agentSigner := buildSigner(brokerClient, localSigningKey)

	d := dispatcher.New(cfg.Dispatcher.DefaultDeadline)

	sessions := newSessionPool(cfg.Session, brokerClient, d, eventBus, jail, approvals, agentSigner)

	var browserDriver methods.BrowserDriver
	if cfg.Browser.Enabled {
		drv := browser.New(browser.Config{
			DebugURL: cfg.Browser.DebugURL,
			Headless: cfg.Browser.Headless,
		}, eventBus, logger.With("component", "browser"))
		defer drv.Close()
		browserDriver = drv
	}

	deps := methods.Deps{
		Sessions:  sessions.get,
		Approvals: approvals,
		Signer:    agentSigner,
		Chain:     methods.MockChainClient{},
		Defi:      methods.MockDefiClient{},
		Research:  methods.MockResearchClient{},
		Skills:    skillRegistry,
		Browser:   browserDriver,
		Fetcher:   fetcher,
		Poster:    defaultPoster(chRegistry),
	}
	if err := methods.Register(d, deps); err != nil {
		return err
	}
	if err := registerAgentMethod(d, sup, cfg.Queue.TaskDeadline); err != nil {
		return err
	}
	if err := registerApprovalMethod(d, approvals); err != nil {
		return err
	}
	d.Seal()

	if cfg.Loop.Enabled && brokerClient != nil {
		planner, err := loop.New(loop.Config{
			Interval:     cfg.Loop.Interval,
			CronExpr:     cfg.Loop.CronExpr,
			SnapshotSize: cfg.Loop.SnapshotSize,
			Model:        cfg.Loop.Model,
			Logger:       logger.With("component", "loop"),
		}, eventBus, brokerClient, d)
		if err != nil {
			return fmt.Errorf("loop: %w", err)
		}
		planner.Start(ctx)
		defer planner.Stop()
	}

	if cfg.Queue.Enabled {
		poller := queue.New(store, buildQueueHandlers(d, brokerClient), queue.Config{
			PollInterval: cfg.Queue.PollInterval,
			Batch:        cfg.Queue.Batch,
			TaskDeadline: cfg.Queue.TaskDeadline,
			ResultTTL:    cfg.Queue.ResultTTL,
			Logger:       logger.With("component", "queue"),
		})
		go poller.Run(ctx)
	}

	go sampleGauges(ctx, metrics, d, sup)

	mux := http.NewServeMux()
	if cfg.Gateway.Enabled {
		gw := gateway.NewServer(d, logger.With("component", "gateway"))
		gw.SetAuth(gateway.NewTokenVerifier(cfg.Gateway.AuthSecret))
		mux.Handle("/ws", gw)
	}
	mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.Server.ListenAddr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("runtime listening", "addr", cfg.Server.ListenAddr, "degraded", brokerClient == nil)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	logger.Info("shutting down")
	d.Shutdown()
	for _, rec := range sup.List() {
		_ = sup.Stop(rec.AgentID)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func buildLogger(cfg config.LoggingConfig, debug bool) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func buildStore(cfg config.KVStoreConfig) (kvstore.Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return kvstore.NewMemoryStore(), nil
	case "sqlite":
		path := cfg.SQLite.Path
		if path == "" {
			path = "agentrt.db"
		}
		return kvstore.NewSQLiteStore(path)
	case "redis":
		return kvstore.NewRedisStore(redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})), nil
	default:
		return nil, fmt.Errorf("unknown kvstore backend %q", cfg.Backend)
	}
}

// buildChannels registers every enabled outbound adapter, reading tokens
// from the not-yet-scrubbed environment. The mock adapter is always
// present so the approval notifier has somewhere to deliver in
// development.
func buildChannels(cfg config.Config, logger *slog.Logger) *channels.Registry {
	reg := channels.NewRegistry()
	reg.Register(channels.NewMock())

	if cfg.Channels.Telegram.Enabled {
		chatID, _ := strconv.ParseInt(os.Getenv("TELEGRAM_CHAT_ID"), 10, 64)
		tg, err := channels.NewTelegram(channels.TelegramConfig{
			Token:         os.Getenv("TELEGRAM_BOT_TOKEN"),
			DefaultChatID: chatID,
			ApprovalChat:  chatID,
		})
		if err != nil {
			logger.Warn("telegram adapter disabled", "error", err)
		} else {
			reg.Register(tg)
		}
	}
	if cfg.Channels.Discord.Enabled {
		dc, err := channels.NewDiscord(channels.DiscordConfig{
			Token:           os.Getenv("DISCORD_BOT_TOKEN"),
			DefaultChannel:  os.Getenv("DISCORD_CHANNEL_ID"),
			ApprovalChannel: os.Getenv("DISCORD_CHANNEL_ID"),
		})
		if err != nil {
			logger.Warn("discord adapter disabled", "error", err)
		} else {
			reg.Register(dc)
		}
	}
	if cfg.Channels.Slack.Enabled {
		sl, err := channels.NewSlack(channels.SlackConfig{
			Token:           os.Getenv("SLACK_BOT_TOKEN"),
			DefaultChannel:  os.Getenv("SLACK_CHANNEL_ID"),
			ApprovalChannel: os.Getenv("SLACK_CHANNEL_ID"),
		})
		if err != nil {
			logger.Warn("slack adapter disabled", "error", err)
		} else {
			reg.Register(sl)
		}
	}
	reg.SetOwnerChannel(channels.ChannelType(cfg.Approval.NotifyChannel))
	return reg
}

func defaultPoster(reg *channels.Registry) methods.Poster {
	return &methods.ChannelPoster{Registry: reg, Channel: channels.ChannelMock}
}

// buildSigner returns the broker-backed signer when the broker is up. The
// local variant is only constructed when the broker is absent and a key
// was explicitly configured — single-process development.
func buildSigner(client *broker.Client, localKey string) signer.Signer {
	if client != nil {
		return signer.NewBrokerSigner(client, "default")
	}
	if localKey == "" {
		return nil
	}
	s, err := signer.NewLocalSigner(localKey)
	if err != nil {
		slog.Warn("invalid local signing key; signing unavailable", "error", err)
		return nil
	}
	return s
}

// brokerEmbedder adapts broker.Client to skills.Embedder.
type brokerEmbedder struct {
	client *broker.Client
}

func (b *brokerEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := b.client.Embed(ctx, broker.EmbedRequest{Input: []string{text}})
	if err != nil {
		return nil, err
	}
	if len(out.Vectors) == 0 {
		return nil, fmt.Errorf("broker returned no embedding")
	}
	return out.Vectors[0], nil
}

// sessionPool creates chat sessions on demand, one per session id.
type sessionPool struct {
	cfg      config.SessionConfig
	llm      chatsession.Completer
	d        *dispatcher.Dispatcher
	bus      *bus.Bus
	jail     *workspace.Jail
	handlers map[chatsession.IntentKind]chatsession.IntentHandler

	mu       sync.Mutex
	sessions map[string]*chatsession.Session
}

func newSessionPool(cfg config.SessionConfig, client *broker.Client, d *dispatcher.Dispatcher, b *bus.Bus, jail *workspace.Jail, approvals *approval.Manager, sgn signer.Signer) *sessionPool {
	var llm chatsession.Completer
	if client != nil {
		llm = client
	}
	return &sessionPool{
		cfg:      cfg,
		llm:      llm,
		d:        d,
		bus:      b,
		jail:     jail,
		handlers: buildIntentHandlers(approvals, sgn, d),
		sessions: make(map[string]*chatsession.Session),
	}
}

func (p *sessionPool) get(sessionID string) *chatsession.Session {
	if p.llm == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.sessions[sessionID]; ok {
		return s
	}
	s := chatsession.New(chatsession.Config{
		SessionID:        sessionID,
		IdentityPrompt:   p.cfg.IdentityPrompt,
		HistoryExchanges: p.cfg.HistoryExchanges,
		OwnerOnly:        p.cfg.OwnerOnly,
		OwnerIdentity:    p.cfg.OwnerIdentity,
		Model:            p.cfg.Model,
	}, p.llm, p.d, p.bus, p.jail, p.handlers)
	p.sessions[sessionID] = s
	return s
}

// buildIntentHandlers wires the deterministic tool intents. The handlers do
// not check their fields themselves (the session has already checked that
// the required fields were literally present); they gate value-moving
// operations through the approval manager before touching the signer.
func buildIntentHandlers(approvals *approval.Manager, sgn signer.Signer, d *dispatcher.Dispatcher) map[chatsession.IntentKind]chatsession.IntentHandler {
	return map[chatsession.IntentKind]chatsession.IntentHandler{
		chatsession.IntentSend: func(ctx context.Context, fields map[string]any) (string, error) {
			to, _ := fields["to"].(string)
			amount := parseEthAmount(fields["amount"])
			rec, err := approvals.Submit(ctx, approval.Intent{Operation: "send", To: to, Value: amount}, "chat")
			if err != nil {
				return "", err
			}
			switch rec.State {
			case approval.StateApproved:
				if sgn == nil {
					return "", fmt.Errorf("no signer configured")
				}
				if _, err := sgn.SignMessage(ctx, []byte(rec.ID)); err != nil {
					return "", err
				}
				_ = approvals.MarkExecuted(rec.ID)
				return fmt.Sprintf("Sent %s to %s (approval %s).", fields["amount"], to, rec.ID), nil
			case approval.StateRejected:
				return fmt.Sprintf("Transfer rejected (approval %s).", rec.ID), nil
			default:
				return fmt.Sprintf("Transfer is awaiting owner approval (id %s).", rec.ID), nil
			}
		},
		chatsession.IntentSwap: func(ctx context.Context, fields map[string]any) (string, error) {
			from, _ := fields["fromToken"].(string)
			toTok, _ := fields["toToken"].(string)
			rec, err := approvals.Submit(ctx, approval.Intent{
				Operation: "swap",
				Value:     parseEthAmount(fields["amount"]),
			}, "chat")
			if err != nil {
				return "", err
			}
			if rec.State == approval.StateApproved {
				_ = approvals.MarkExecuted(rec.ID)
				return fmt.Sprintf("Swap %s -> %s approved (id %s).", from, toTok, rec.ID), nil
			}
			return fmt.Sprintf("Swap %s -> %s awaiting approval (id %s).", from, toTok, rec.ID), nil
		},
		chatsession.IntentDeploy: func(ctx context.Context, fields map[string]any) (string, error) {
			result, err := d.Dispatch(ctx, dispatcher.Request{Method: "deploy", Params: map[string]any{
				"template": fields["template"],
				"params":   map[string]any{},
			}})
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Deployed: %v", result), nil
		},
		chatsession.IntentBalance: func(ctx context.Context, fields map[string]any) (string, error) {
			if sgn == nil {
				return "", fmt.Errorf("no signer configured")
			}
			addr, err := sgn.Address(ctx)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Agent address: %s", addr), nil
		},
	}
}

// parseEthAmount converts a human amount ("0.005") to wei. Malformed or
// negative input parses to zero.
func parseEthAmount(v any) uint64 {
	s := fmt.Sprintf("%v", v)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0
	}
	return uint64(f * 1e18)
}

// buildQueueHandlers maps each task type to its executor. The dispatcher
// types route through the same correlation pathway as gateway requests;
// the generation types go straight to the broker.
func buildQueueHandlers(d *dispatcher.Dispatcher, client *broker.Client) map[queue.TaskType]queue.Handler {
	dispatchTask := func(method string) queue.Handler {
		return func(ctx context.Context, rec queue.Record) (json.RawMessage, error) {
			var params map[string]any
			if len(rec.Params) > 0 {
				if err := json.Unmarshal(rec.Params, &params); err != nil {
					return nil, fmt.Errorf("task params: %w", err)
				}
			}
			result, err := d.Dispatch(ctx, dispatcher.Request{Method: method, Params: params})
			if err != nil {
				return nil, err
			}
			return json.Marshal(result)
		}
	}
	completeTask := func(promptPrefix string) queue.Handler {
		return func(ctx context.Context, rec queue.Record) (json.RawMessage, error) {
			if client == nil {
				return nil, fmt.Errorf("broker unavailable")
			}
			out, err := client.Complete(ctx, broker.CompletionRequest{
				Messages: []broker.CompletionMessage{{Role: "user", Content: promptPrefix + string(rec.Params)}},
			})
			if err != nil {
				return nil, err
			}
			return json.Marshal(map[string]string{"content": out.Content})
		}
	}
	return map[queue.TaskType]queue.Handler{
		queue.TypeDefiQuery:       dispatchTask("defi"),
		queue.TypeContractDeploy:  dispatchTask("deploy"),
		queue.TypeTokenResearch:   dispatchTask("research"),
		queue.TypeContentGenerate: completeTask("Generate content for: "),
		queue.TypeScamCheck:       completeTask("Assess scam risk for: "),
	}
}

// registerAgentMethod exposes the sub-agent supervisor over the gateway:
// spawn a role, send it a task, stop it, or list the live table. Workers
// are this same binary re-executed with the hidden worker subcommand.
func registerAgentMethod(d *dispatcher.Dispatcher, sup *subagent.Supervisor, taskDeadline time.Duration) error {
	selfPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve own executable: %w", err)
	}
	if taskDeadline <= 0 {
		taskDeadline = 60 * time.Second
	}
	handler := func(ctx context.Context, params map[string]any) (any, error) {
		action, _ := params["action"].(string)
		switch action {
		case "spawn":
			role, _ := params["role"].(string)
			agentID, err := sup.Spawn(ctx, subagent.Role(role), selfPath, []string{"worker"})
			if err != nil {
				return nil, err
			}
			return map[string]any{"agentId": agentID}, nil
		case "task":
			agentID, _ := params["agentId"].(string)
			task, err := json.Marshal(params["task"])
			if err != nil {
				return nil, err
			}
			taskID := models.NewCorrelationID()
			result, err := sup.SendTask(ctx, agentID, taskID, task, taskDeadline)
			if err != nil {
				return nil, err
			}
			return map[string]any{"taskId": taskID, "result": json.RawMessage(result)}, nil
		case "stop":
			agentID, _ := params["agentId"].(string)
			if err := sup.Stop(agentID); err != nil {
				return nil, err
			}
			return map[string]any{"stopped": agentID}, nil
		case "list":
			return sup.List(), nil
		default:
			return nil, fmt.Errorf("unknown agent action %q", action)
		}
	}
	return d.Register("agent", handler, 2*time.Minute, nil)
}

// registerApprovalMethod exposes approval resolution over the gateway:
// the owner (or a channel bridge relaying a {approval_id, decision} reply)
// approves or rejects a pending record, and can inspect one by id. This is
// the inbound half of the out-of-band confirmation flow; NotifyPending is
// the outbound half.
func registerApprovalMethod(d *dispatcher.Dispatcher, approvals *approval.Manager) error {
	handler := func(ctx context.Context, params map[string]any) (any, error) {
		action, _ := params["action"].(string)
		id, _ := params["approvalId"].(string)
		if id == "" {
			return nil, rterr.New(rterr.KindInvalidParams, "approval requires approvalId")
		}
		switch action {
		case "approve", "reject":
			decidedBy, _ := params["decidedBy"].(string)
			if decidedBy == "" {
				decidedBy = "owner"
			}
			rec, err := approvals.Resolve(ctx, id, action == "approve", decidedBy)
			if err != nil {
				return nil, err
			}
			return map[string]any{"approvalId": rec.ID, "state": rec.State}, nil
		case "get":
			rec, err := approvals.Get(id)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"approvalId": rec.ID,
				"state":      rec.State,
				"operation":  rec.Intent.Operation,
				"to":         rec.Intent.To,
				"value":      rec.Intent.Value,
				"expiresAt":  rec.ExpiresAt,
			}, nil
		default:
			return nil, rterr.New(rterr.KindInvalidParams, "unknown approval action "+action)
		}
	}
	return d.Register("approval", handler, 10*time.Second, nil)
}

// sampleGauges feeds the state gauges that have no natural event hook.
func sampleGauges(ctx context.Context, m *observability.Metrics, d *dispatcher.Dispatcher, sup *subagent.Supervisor) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.DispatcherInFlight.Set(float64(d.InFlightCount()))
			m.SubAgentState.Reset()
			for _, rec := range sup.List() {
				m.SubAgentState.WithLabelValues(string(rec.Role), string(rec.State)).Inc()
			}
		}
	}
}
