package main

import (
	"context"
	"log"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alibaba/proxima-sub000/internal/binlog/fetcher"
	"github.com/alibaba/proxima-sub000/internal/binlog/reader"
	"github.com/alibaba/proxima-sub000/internal/binlog/refresher"
	"github.com/alibaba/proxima-sub000/internal/config"
	"github.com/alibaba/proxima-sub000/internal/errcode"
	"github.com/alibaba/proxima-sub000/internal/executor"
	"github.com/alibaba/proxima-sub000/internal/indexservice"
	"github.com/alibaba/proxima-sub000/internal/memkernel"
	"github.com/alibaba/proxima-sub000/internal/meta"
	"github.com/alibaba/proxima-sub000/internal/metastore"
	"github.com/alibaba/proxima-sub000/internal/observability"
	"github.com/alibaba/proxima-sub000/internal/query"
	"github.com/alibaba/proxima-sub000/internal/record"
	"github.com/alibaba/proxima-sub000/internal/scheduler"
	"github.com/alibaba/proxima-sub000/internal/schema"
	"github.com/alibaba/proxima-sub000/internal/segment"
)

var configPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the index service, query engine and (if configured) binlog ingestion",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(configPath)
	},
}

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "./config.yaml", "path to config.yaml")
}

// columnOrderRegistry maps a collection name to its index-column name
// order, populated right before each CreateCollection call and read inside
// the SegmentFactory closure below it so a freshly built memkernel.Segment
// knows how to name the positional vectors Collection.WriteRecords hands
// it (schema.IndexColumns never reaches the factory signature directly).
type columnOrderRegistry struct {
	mu     sync.RWMutex
	orders map[string][]string
}

func newColumnOrderRegistry() *columnOrderRegistry {
	return &columnOrderRegistry{orders: make(map[string][]string)}
}

func (r *columnOrderRegistry) set(name string, sc schema.Schema) {
	order := make([]string, len(sc.IndexColumns))
	for i, c := range sc.IndexColumns {
		order[i] = c.Name
	}
	r.mu.Lock()
	r.orders[name] = order
	r.mu.Unlock()
}

func (r *columnOrderRegistry) get(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.orders[name]
}

func runServe(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfgLoader, err := config.NewLoader(configPath)
	if err != nil {
		return errcode.Wrap(errcode.LoadConfig, err, "load config")
	}
	cfg := cfgLoader.Current()

	providers, err := observability.Setup(ctx, observability.Config{
		ServiceName:  cfg.Observability.ServiceName,
		OTLPEndpoint: cfg.Observability.OTLPEndpoint,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
		defer shutdownCancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			log.Printf("proximabe: observability shutdown: %v", err)
		}
	}()

	store := metastore.New()
	metaWrapper := meta.NewMetaWrapper(store, 4096)
	columnOrders := newColumnOrderRegistry()

	newSeg := func(dir, name string, id uint64, concurrency int) (segment.Segment, error) {
		return memkernel.New(dir, name, id, concurrency, columnOrders.get(name))
	}

	svc, err := indexservice.New(indexservice.Config{
		IndexDir:         cfg.IndexDir,
		Concurrency:      max(cfg.BuildThreads+cfg.QueryThreads, 1),
		FlushInterval:    cfg.FlushInterval,
		OptimizeInterval: cfg.OptimizeInterval,
		MetaRecord:       store.Record,
		MetaInvalidate:   metaWrapper.Invalidate,
	}, newSeg)
	if err != nil {
		return err
	}
	if err := svc.Init(); err != nil {
		return err
	}
	if err := svc.Start(); err != nil {
		return err
	}
	defer func() {
		if err := svc.Stop(); err != nil {
			log.Printf("proximabe: index service stop: %v", err)
		}
	}()

	sched := scheduler.New(max(cfg.QueryThreads, 1))
	exec := executor.New(sched)
	qsvc := query.NewService(svc.Collection, exec, metaWrapper)
	_ = qsvc // exposed for whatever transport layer (RPC/HTTP) a deployment binds on top

	createCollection := func(ctx context.Context, name string, sc schema.Schema) error {
		columnOrders.set(name, sc)
		return svc.CreateCollection(ctx, name, sc)
	}

	if cfg.MySQL.Addr != "" && cfg.MySQL.Table != "" {
		if err := createCollection(ctx, cfg.MySQL.Table, schema.Schema{Revision: 1}); err != nil {
			log.Printf("proximabe: binlog target collection %q not pre-created: %v", cfg.MySQL.Table, err)
		}
		go runBinlogPipeline(ctx, cfg, svc)
	}

	log.Printf("proximabe: serving (index_dir=%s)", cfg.IndexDir)
	<-ctx.Done()
	log.Printf("proximabe: shutting down")
	return nil
}

// runBinlogPipeline drives the CDC ingestion path end to end: a dedicated
// EventFetcher streams binlog events into a BinlogReader, whose rows are
// folded one-by-one into the configured collection via WriteRecords,
// resuming from cfg.MySQL.BinlogFile/BinlogPosition when set. BinlogReader
// suspends permanently on a schema-incompatible ALTER TABLE; the refresher
// built below has no expected column list, so it reports every re-read
// schema as compatible and that suspension does not occur here.
func runBinlogPipeline(ctx context.Context, cfg config.Config, svc *indexservice.Service) {
	start := fetcher.Position{File: cfg.MySQL.BinlogFile, Position: cfg.MySQL.BinlogPosition}
	ef, err := fetcher.NewEventFetcher(ctx, fetcher.Config{
		Addr:     cfg.MySQL.Addr,
		User:     cfg.MySQL.User,
		Password: cfg.MySQL.Password,
		DB:       cfg.MySQL.Database,
	}, start)
	if err != nil {
		log.Printf("binlog: connect: %v", err)
		return
	}
	defer ef.Close()

	refresh := refresher.New(ef.Admin(), nil)
	br := reader.NewBinlogReader(ef, refresh, cfg.MySQL.Database, cfg.MySQL.Table)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		row, status, err := br.GetNextRowData(ctx)
		switch status {
		case reader.StatusRow:
			if err := svc.WriteRecords(ctx, cfg.MySQL.Table, record.Dataset{row}); err != nil {
				log.Printf("binlog: write record: %v", err)
			}
		case reader.StatusSchemaChanged:
			log.Printf("binlog: schema changed for %s.%s", cfg.MySQL.Database, cfg.MySQL.Table)
		case reader.StatusSuspended:
			log.Printf("binlog: pipeline suspended: %v", err)
			return
		case reader.StatusNoMoreData:
			if errcode.CodeOf(err) != errcode.BinlogNoMoreData {
				log.Printf("binlog: fetch error: %v", err)
				return
			}
			// Caught up with the source; briefly back off before polling
			// for the next event rather than spinning.
			select {
			case <-ctx.Done():
				return
			case <-time.After(200 * time.Millisecond):
			}
		}
	}
}

