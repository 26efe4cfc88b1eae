// Command server wires the core packages (store, lock, forge, status,
// command executor, event dispatcher) into a runnable process the way
// cmd/hook wires prow's ConfigAgent/PluginAgent/hook.Server. The
// webhook HTTP receiver, its signature verification, a concrete forge
// HTTP client, and a concrete relational store are out-of-scope
// adapters (§1): this binary wires in-memory/fake stand-ins for them
// so the core can actually run, and exposes only health and metrics
// endpoints.
package main

import (
	"flag"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/clarketm/prbot/internal/command/executor"
	"github.com/clarketm/prbot/internal/command/handlers"
	"github.com/clarketm/prbot/internal/config"
	"github.com/clarketm/prbot/internal/domain"
	"github.com/clarketm/prbot/internal/event"
	"github.com/clarketm/prbot/internal/forge/fake"
	"github.com/clarketm/prbot/internal/gif"
	"github.com/clarketm/prbot/internal/lock"
	lockmemory "github.com/clarketm/prbot/internal/lock/memory"
	lockredis "github.com/clarketm/prbot/internal/lock/redis"
	"github.com/clarketm/prbot/internal/metrics"
	"github.com/clarketm/prbot/internal/status"
	storememory "github.com/clarketm/prbot/internal/store/memory"
)

type options struct {
	port int

	botName                     string
	defaultMergeStrategy        string
	defaultNeededReviewersCount int
	defaultPRTitleRegex         string
	defaultAutomerge            bool
	defaultEnableQa             bool
	defaultEnableChecks         bool
	enableWelcomeComments       bool

	redisAddr string
	gifAPIKey string
}

func gatherOptions() options {
	o := options{}
	flag.IntVar(&o.port, "port", 8888, "Port to listen on.")
	flag.StringVar(&o.botName, "bot-name", "prbot", "Name the bot answers to in comments.")
	flag.StringVar(&o.defaultMergeStrategy, "default-merge-strategy", string(domain.StrategyMerge), "Repository default merge strategy.")
	flag.IntVar(&o.defaultNeededReviewersCount, "default-needed-reviewers", 2, "Repository default number of required approvals.")
	flag.StringVar(&o.defaultPRTitleRegex, "default-pr-title-regex", "", "Repository default pull request title validation regex.")
	flag.BoolVar(&o.defaultAutomerge, "default-automerge", false, "Repository default automerge.")
	flag.BoolVar(&o.defaultEnableQa, "default-enable-qa", true, "Repository default qa gate.")
	flag.BoolVar(&o.defaultEnableChecks, "default-enable-checks", true, "Repository default checks gate.")
	flag.BoolVar(&o.enableWelcomeComments, "enable-welcome-comments", true, "Post a welcome comment on newly tracked pull requests.")
	flag.StringVar(&o.redisAddr, "redis-addr", "", "Redis address for the distributed lock service. Empty uses an in-process lock, single-instance only.")
	flag.StringVar(&o.gifAPIKey, "gif-api-key", "", "API key passed through to the forge's gif search.")
	flag.Parse()
	return o
}

func main() {
	o := gatherOptions()
	logrus.SetFormatter(&logrus.JSONFormatter{})
	log := logrus.WithField("component", "server")

	cfg := config.Config{
		BotName:                       o.botName,
		Server:                        config.ServerConfig{EnableWelcomeComments: o.enableWelcomeComments},
		DefaultMergeStrategy:          domain.MergeStrategy(o.defaultMergeStrategy),
		DefaultNeededReviewersCount:   o.defaultNeededReviewersCount,
		DefaultPRTitleValidationRegex: o.defaultPRTitleRegex,
		DefaultAutomerge:              o.defaultAutomerge,
		DefaultEnableQa:               o.defaultEnableQa,
		DefaultEnableChecks:           o.defaultEnableChecks,
		GifProviderAPIKey:             o.gifAPIKey,
	}

	reg := prometheus.NewRegistry()
	promMetrics := metrics.NewMetrics(reg)

	var lockSvc lock.Service
	if o.redisAddr != "" {
		rdb := goredis.NewClient(&goredis.Options{Addr: o.redisAddr})
		lockSvc = lockredis.New(rdb, cfg.BotName)
		log.WithField("redis_addr", o.redisAddr).Info("using redis lock service")
	} else {
		lockSvc = lockmemory.New()
		log.Warn("no --redis-addr given, using single-instance in-memory lock service")
	}

	st := storememory.New()
	// The real forge HTTP client is an out-of-scope adapter (§1); wire
	// a scriptable fake so the core has something to drive against.
	forgeClient := fake.New()

	handlerDeps := handlers.Deps{
		Store:  st,
		Forge:  forgeClient,
		Gif:    gif.FromClient(forgeClient, cfg.GifProviderAPIKey),
		Config: cfg,
		Logger: log.WithField("subcomponent", "handlers"),
	}

	statusEngine := &status.Engine{
		Store:   st,
		Forge:   forgeClient,
		Locks:   lockSvc,
		Metrics: promMetrics,
		Config:  cfg,
		Logger:  log.WithField("subcomponent", "status"),
	}

	exec := &executor.Executor{
		Store:   st,
		Forge:   forgeClient,
		Handler: handlerDeps,
		Status:  statusEngine.Run,
		Logger:  log.WithField("subcomponent", "executor"),
	}

	dispatcher := &event.Dispatcher{
		Store:    st,
		Forge:    forgeClient,
		Status:   statusEngine,
		Executor: exec,
		Config:   cfg,
		Metrics:  promMetrics,
		Logger:   log.WithField("subcomponent", "event"),
	}
	_ = dispatcher // wired for use by the out-of-scope webhook receiver adapter

	http.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	log.WithField("port", o.port).Info("listening")
	log.Fatal(http.ListenAndServe(":"+strconv.Itoa(o.port), nil))
}
