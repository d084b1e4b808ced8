// Command repscanctl hashes files and queries reputation services through
// the libscan engine, printing one line per (file, service) result.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/quay/zlog"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/repscan/repscan"
	"github.com/repscan/repscan/datastore/sqlite"
	"github.com/repscan/repscan/hybridanalysis"
	"github.com/repscan/repscan/libscan"
	"github.com/repscan/repscan/libscan/driver"
	"github.com/repscan/repscan/virustotal"
)

func main() {
	var exit int
	defer func() {
		if exit != 0 {
			os.Exit(exit)
		}
	}()
	ctx, done := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer done()

	var (
		dbPath    = flag.String("d", "scan.db", "path to the result cache database")
		vtKey     = flag.String("vt-key", os.Getenv("VT_API_KEY"), "VirusTotal API key")
		haKey     = flag.String("ha-key", os.Getenv("HA_API_KEY"), "Hybrid Analysis API key")
		rescan    = flag.Bool("rescan", false, "force service queries, ignoring unexpired cache entries")
		localOnly = flag.Bool("local-only", false, "consult only the cache, never the network")
		debug     = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(zerolog.InfoLevel).
		With().Timestamp().Logger()
	if *debug {
		log = log.Level(zerolog.DebugLevel)
	}
	zlog.Set(&log)

	if err := run(ctx, *dbPath, *vtKey, *haKey, *rescan, *localOnly, flag.Args()); err != nil {
		zlog.Error(ctx).Err(err).Send()
		exit = 1
	}
}

func run(ctx context.Context, dbPath, vtKey, haKey string, rescan, localOnly bool, files []string) error {
	if len(files) == 0 {
		return fmt.Errorf("no files to scan")
	}
	var adapters []driver.Adapter
	if vtKey != "" {
		// The public API tier allows 4 requests a minute.
		vt, err := virustotal.New(&virustotal.Options{
			APIKey:  vtKey,
			Limiter: rate.NewLimiter(rate.Limit(4.0/60.0), 1),
		})
		if err != nil {
			return err
		}
		adapters = append(adapters, vt)
	}
	if haKey != "" {
		ha, err := hybridanalysis.New(&hybridanalysis.Options{APIKey: haKey})
		if err != nil {
			return err
		}
		adapters = append(adapters, ha)
	}
	if len(adapters) == 0 {
		return fmt.Errorf("no API keys provided; nothing to do")
	}

	store, err := sqlite.Open(ctx, dbPath, libscan.Tables(adapters...))
	if err != nil {
		return err
	}
	eng, err := libscan.New(ctx, &libscan.Options{
		Adapters: adapters,
		Store:    store,
	})
	if err != nil {
		store.Close()
		return err
	}
	defer eng.Close(ctx)

	var flags repscan.Flag
	if rescan {
		flags |= repscan.FlagRescan
	}
	if localOnly {
		flags |= repscan.FlagLocalOnly
	}

	var wg sync.WaitGroup
	var mu sync.Mutex // serializes output lines
	print := func(service, fileName string, _ repscan.Digest, result string) {
		defer wg.Done()
		mu.Lock()
		defer mu.Unlock()
		if result == "" {
			result = "-"
		}
		fmt.Printf("%s\t%s\t%s\n", fileName, service, result)
	}

	for _, f := range files {
		sc := eng.NewContext(f)
		defer sc.Close()
		for _, svc := range eng.Services() {
			wg.Add(1)
			if err := eng.Enqueue(ctx, sc, svc, flags, print); err != nil {
				wg.Done()
				zlog.Warn(ctx).Str("file", f).Str("service", svc).Err(err).Msg("not enqueued")
			}
		}
	}

	ok := make(chan struct{})
	go func() { wg.Wait(); close(ok) }()
	select {
	case <-ok:
	case <-ctx.Done():
		return context.Cause(ctx)
	}
	return nil
}
