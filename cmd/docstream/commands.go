package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/docstream/internal/client"
	"github.com/JonMunkholm/docstream/internal/config"
	"github.com/JonMunkholm/docstream/internal/export"
	"github.com/JonMunkholm/docstream/internal/logging"
	"github.com/JonMunkholm/docstream/internal/staging"
	"github.com/JonMunkholm/docstream/internal/stream"
	"github.com/JonMunkholm/docstream/internal/upload"
	"github.com/JonMunkholm/docstream/internal/web"
)

// decodeOptions turns the [decode] settings into stream options.
func decodeOptions(cfg *config.Config) ([]stream.Option, error) {
	encs, err := stream.EncodingsByName(cfg.Decode.Encodings)
	if err != nil {
		return nil, err
	}
	opts := []stream.Option{
		stream.WithEncodings(encs...),
		stream.WithMaxBytes(cfg.Decode.MaxBytes),
	}
	if !cfg.Decode.FixText {
		opts = append(opts, stream.WithTextFixer(nil))
	}
	return opts, nil
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

// runInspect prints each file's descriptor to stderr and its records as JSON
// lines to stdout.
func runInspect(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("inspect")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errUsage
	}
	opts, err := decodeOptions(a.cfg)
	if err != nil {
		return err
	}

	out := json.NewEncoder(os.Stdout)
	for _, path := range fs.Args() {
		var encoding string
		fileOpts := append([]stream.Option{
			stream.WithResolveHook(func(enc stream.Encoding) { encoding = enc.Name() }),
		}, opts...)

		desc, seq, err := stream.Load(path, fileOpts...)
		if err != nil {
			return err
		}

		n := 0
		for rec, err := range seq {
			if err != nil {
				return err
			}
			if err := out.Encode(rec); err != nil {
				return fmt.Errorf("write record: %w", err)
			}
			n++
			if n%upload.ContextCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
		}
		if encoding == "" {
			encoding = "utf-8"
		}
		fmt.Fprintf(os.Stderr, "%s: format=%s encoding=%s records=%d\n", path, desc.Format, encoding, n)
	}
	return nil
}

// openDatabase connects to the document API and opens the upload database.
func openDatabase(ctx context.Context, a *app) (*client.Database, error) {
	if err := a.cfg.RequireAPI(); err != nil {
		return nil, err
	}
	api := a.cfg.API

	opts := []client.Option{
		client.WithTimeout(api.Timeout),
		client.WithRootURL(api.RootURL),
		client.WithUserAgent(api.UserAgent),
		client.WithLogger(logging.FromContext(ctx)),
	}
	if api.Proxy != "" {
		proxy, err := url.Parse(api.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid API_PROXY: %w", err)
		}
		opts = append(opts, client.WithProxy(proxy))
	}

	var (
		c   *client.Client
		err error
	)
	if api.Token != "" {
		c, err = client.New(client.TokenAuth{Token: api.Token}, client.ExpandURL(api.URL), opts...)
	} else {
		c, err = client.Connect(api.URL, api.Username, api.Password, opts...)
	}
	if err != nil {
		return nil, err
	}
	return client.OpenDatabase(ctx, c, a.cfg.Upload.Database)
}

func newUploader(ctx context.Context, a *app) (*upload.Uploader, error) {
	opts, err := decodeOptions(a.cfg)
	if err != nil {
		return nil, err
	}
	db, err := openDatabase(ctx, a)
	if err != nil {
		return nil, err
	}
	return upload.New(db,
		upload.WithBatchSize(a.cfg.Upload.BatchSize),
		upload.WithDecodeOptions(opts...),
		upload.WithMetrics(a.metrics),
	), nil
}

// runUpload uploads each file in turn and stops at the first failure.
func runUpload(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("upload")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errUsage
	}

	u, err := newUploader(ctx, a)
	if err != nil {
		return err
	}
	for _, path := range fs.Args() {
		fileCtx, cancel := context.WithTimeout(ctx, a.cfg.Upload.Timeout)
		res, err := u.UploadFile(fileCtx, path)
		cancel()
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d records in %d batches (%s, %s)\n",
			res.File, res.Records, res.Batches, res.Format, res.Duration.Round(time.Millisecond))
	}
	return nil
}

// runWatchDir processes a directory once or keeps polling it until
// interrupted.
func runWatchDir(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("watch-dir")
	once := fs.Bool("once", false, "process the directory once and exit")
	interval := fs.Duration("interval", a.cfg.Upload.PollInterval, "time between scans")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 || *interval <= 0 {
		return errUsage
	}
	dir := fs.Arg(0)

	u, err := newUploader(ctx, a)
	if err != nil {
		return err
	}
	p := upload.NewDirProcessor(u, a.cfg.Upload.MaxConcurrent, a.cfg.Upload.Timeout)

	if !*once {
		p.Watch(ctx, dir, *interval)
		return nil
	}

	summary, err := p.ProcessDir(ctx, dir)
	fmt.Printf("%s: %d uploaded, %d failed, %d skipped\n",
		dir, len(summary.Uploaded), len(summary.Failed), len(summary.Skipped))
	for _, f := range summary.Failed {
		fmt.Printf("  failed: %s (see %q)\n", f.File, f.File+upload.FailedSuffix)
	}
	if err != nil {
		return err
	}
	if len(summary.Failed) > 0 {
		return fmt.Errorf("%d file(s) failed", len(summary.Failed))
	}
	return nil
}

// openPool connects to PostgreSQL using the [database] settings.
func openPool(ctx context.Context, a *app) (*pgxpool.Pool, error) {
	if err := a.cfg.RequireDatabase(); err != nil {
		return nil, err
	}

	poolConfig, err := pgxpool.ParseConfig(a.cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(a.cfg.Database.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

func newStager(ctx context.Context, a *app) (*staging.Stager, func(), error) {
	opts, err := decodeOptions(a.cfg)
	if err != nil {
		return nil, nil, err
	}
	pool, err := openPool(ctx, a)
	if err != nil {
		return nil, nil, err
	}
	s, err := staging.New(pool, a.cfg.Database.Table,
		staging.WithDecodeOptions(opts...),
		staging.WithMetrics(a.metrics),
	)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool.Close, nil
}

// runStage copies each file into the staging table, one batch per file.
func runStage(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("stage")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errUsage
	}

	s, closePool, err := newStager(ctx, a)
	if err != nil {
		return err
	}
	defer closePool()

	if err := s.EnsureTable(ctx); err != nil {
		return err
	}
	for _, path := range fs.Args() {
		res, err := s.StageFile(ctx, path)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d records staged in %s as batch %s\n", res.File, res.Records, s.Table(), res.BatchID)
	}
	return nil
}

// runUnstage deletes previously staged batches.
func runUnstage(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("unstage")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errUsage
	}

	s, closePool, err := newStager(ctx, a)
	if err != nil {
		return err
	}
	defer closePool()

	for _, id := range fs.Args() {
		n, err := s.DeleteBatch(ctx, id)
		if err != nil {
			return err
		}
		fmt.Printf("batch %s: %d records deleted\n", id, n)
	}
	return nil
}

// runExport writes one file's records as Avro or Parquet.
func runExport(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("export")
	formatName := fs.String("format", string(export.FormatParquet), "output format: avro or parquet")
	compression := fs.String("compression", "", "compression codec (default depends on format)")
	out := fs.String("o", "", "output file (default: input name with the format's extension)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errUsage
	}
	in := fs.Arg(0)

	format, err := export.ParseFormat(*formatName)
	if err != nil {
		return err
	}
	enc, err := export.NewEncoder(format, *compression)
	if err != nil {
		return err
	}
	opts, err := decodeOptions(a.cfg)
	if err != nil {
		return err
	}

	if *out == "" {
		*out = strings.TrimSuffix(in, filepath.Ext(in)) + enc.FileExtension()
	}
	if filepath.Clean(*out) == filepath.Clean(in) {
		return fmt.Errorf("export: output %s would overwrite the input", *out)
	}
	stats, err := export.New(enc,
		export.WithDecodeOptions(opts...),
		export.WithMetrics(a.metrics),
	).ExportFile(ctx, in, *out)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d records written to %s (%d bytes)\n", stats.Source, stats.Records, stats.Output, stats.SizeBytes)
	return nil
}

// runServe runs the preview service until interrupted.
func runServe(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("serve")
	if err := fs.Parse(args); err != nil {
		return err
	}
	opts, err := decodeOptions(a.cfg)
	if err != nil {
		return err
	}
	encs, err := stream.EncodingsByName(a.cfg.Decode.Encodings)
	if err != nil {
		return err
	}

	server := web.NewServer(a.cfg.Preview,
		web.WithEncodings(encs),
		web.WithDecodeOptions(opts...),
		web.WithMetrics(a.metrics, a.registry),
	)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logging.FromContext(ctx).Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Preview.ShutdownTimeout)
	defer cancel()

	status := server.Limiter().Status()
	if status.Active > 0 {
		logging.FromContext(ctx).Info("waiting for previews to complete", "active", status.Active)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
