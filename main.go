package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	bn "github.com/adshao/go-binance/v2"
	futures "github.com/adshao/go-binance/v2/futures"

	"github.com/Wsquare5/notion-dashboard/config"
	"github.com/Wsquare5/notion-dashboard/internal/archive"
	"github.com/Wsquare5/notion-dashboard/internal/binance"
	"github.com/Wsquare5/notion-dashboard/internal/diff"
	"github.com/Wsquare5/notion-dashboard/internal/governor"
	"github.com/Wsquare5/notion-dashboard/internal/model"
	"github.com/Wsquare5/notion-dashboard/internal/notion"
	"github.com/Wsquare5/notion-dashboard/internal/resolver"
	"github.com/Wsquare5/notion-dashboard/internal/stream"
	"github.com/Wsquare5/notion-dashboard/internal/updater"
	"github.com/Wsquare5/notion-dashboard/logger"
)

// archivingFetcher mirrors every successful snapshot into the run archive
// before handing it to the orchestrator.
type archivingFetcher struct {
	inner   updater.Fetcher
	archive *archive.Writer
}

func (f *archivingFetcher) Fetch(ctx context.Context, req binance.FetchRequest) (*model.MarketSnapshot, error) {
	snap, err := f.inner.Fetch(ctx, req)
	if err == nil {
		f.archive.Record(snap)
	}
	return snap, err
}

func main() {
	configPath := flag.String("config", "config/config.yml", "path to configuration file")
	tierFlag := flag.String("tier", "realtime", "update tier: realtime, static or full")
	symbolsFlag := flag.String("symbols", "", "comma separated symbol subset, default all")
	workersFlag := flag.Int("workers", 0, "override configured worker count")
	flag.Parse()

	log := logger.GetLogger()

	if err := config.LoadEnvironment(); err != nil {
		log.WithComponent("main").WithError(err).Warn("failed to load .env file")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithComponent("main").WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithComponent("main").WithError(err).Error("failed to configure logging")
		os.Exit(1)
	}

	tier, err := model.ParseTier(*tierFlag)
	if err != nil {
		log.WithComponent("main").WithError(err).Error("invalid tier")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.CloudWatchEnabled {
		if err := logger.InitCloudWatch(ctx, cfg.Metrics.Region); err != nil {
			log.WithComponent("main").WithError(err).Warn("cloudwatch metrics unavailable")
		}
	}
	logger.StartSystemReport(ctx, cfg.Metrics.ReportInterval)

	gov := governor.New(governor.Config{
		Name:            "binance",
		WeightPerWindow: int64(cfg.Binance.Budget.WeightPerMinute),
		Window:          time.Minute,
		MinInterval:     cfg.Binance.Budget.MinInterval,
		MaxConcurrent:   cfg.Binance.Budget.MaxConcurrent,
	}, log)

	spotClient := bn.NewClient("", "")
	spotClient.BaseURL = cfg.Binance.SpotURL
	futClient := futures.NewClient("", "")
	futClient.BaseURL = cfg.Binance.FuturesURL

	universe, err := binance.NewUniverseLoader(spotClient, futClient, gov, cfg.Binance.Weights, log).Load(ctx)
	if err != nil {
		log.WithComponent("main").WithError(err).Error("failed to load symbol universe")
		os.Exit(1)
	}
	if cfg.Binance.Budget.AutoDetect && universe.WeightPerMinute > 0 {
		gov.SetBudget(int64(universe.WeightPerMinute))
	}

	client := binance.NewClient(cfg.Binance, gov, log)
	if cfg.Stream.Enabled {
		collector := stream.NewCollector(cfg.Stream.URL, cfg.Stream.MaxAge, log)
		collector.Start(ctx)
		client.SetTickerCache(collector)
	}

	mapping, err := resolver.LoadMapping(cfg.Resolver.MappingFile)
	if err != nil {
		log.WithComponent("main").WithError(err).Error("failed to load symbol mapping")
		os.Exit(1)
	}
	identity := resolver.New(
		resolver.NewCMCClient(cfg.Resolver.CMCURL, cfg.Resolver.CMCAPIKey, cfg.Resolver.CMCInterval, log),
		resolver.NewCoinGeckoClient(cfg.Resolver.CoinGeckoURL, cfg.Resolver.CoinGeckoInterval, log),
		mapping, log,
	)

	blacklist, err := updater.LoadBlacklist(cfg.Updater.BlacklistFile)
	if err != nil {
		log.WithComponent("main").WithError(err).Error("failed to load blacklist")
		os.Exit(1)
	}

	var fetcher updater.Fetcher = client
	var runArchive *archive.Writer
	if cfg.Archive.Enabled {
		runArchive, err = archive.NewWriter(ctx, cfg.Archive, log)
		if err != nil {
			log.WithComponent("main").WithError(err).Error("failed to initialise run archive")
			os.Exit(1)
		}
		fetcher = &archivingFetcher{inner: client, archive: runArchive}
	}

	workers := cfg.Updater.Workers
	if *workersFlag > 0 {
		workers = *workersFlag
	}

	orch := updater.New(fetcher, identity, notion.NewClient(cfg.Notion, log), diff.NewEngine(log), updater.Options{
		Workers:     workers,
		RetryRounds: cfg.Updater.RetryRounds,
		RetryPause:  cfg.Updater.RetryPause,
		Blacklist:   blacklist,
	}, log)

	symbols := universe.Symbols
	if *symbolsFlag != "" {
		symbols = filterSymbols(universe, *symbolsFlag, log)
	}

	result, err := orch.Run(ctx, tier, symbols)
	if err != nil {
		log.WithComponent("main").WithError(err).Error("run failed")
		os.Exit(1)
	}

	if runArchive != nil {
		// Archive with a fresh context so a shutdown signal does not lose
		// the run's data.
		flushCtx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
		if err := runArchive.Flush(flushCtx, result.RunID); err != nil {
			log.WithComponent("main").WithError(err).Warn("failed to flush run archive")
		}
		cancel()
	}

	if result.Aborted {
		os.Exit(1)
	}
}

func filterSymbols(universe *binance.Universe, list string, log *logger.Log) []binance.SymbolInfo {
	var out []binance.SymbolInfo
	for _, raw := range strings.Split(list, ",") {
		base := strings.ToUpper(strings.TrimSpace(raw))
		if base == "" {
			continue
		}
		info, ok := universe.Lookup(base)
		if !ok {
			log.WithComponent("main").WithFields(logger.Fields{"symbol": base}).Warn("symbol not in trading universe, skipping")
			continue
		}
		out = append(out, info)
	}
	return out
}
