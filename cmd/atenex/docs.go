package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"

	"atenex-cli/internal/api"
	"atenex-cli/internal/docsync"
	"atenex-cli/internal/errs"
	"atenex-cli/internal/model"
)

var (
	processedColor  = color.New(color.FgGreen)
	processingColor = color.New(color.FgYellow)
	queuedColor     = color.New(color.FgCyan)
	errColor        = color.New(color.FgRed)
)

func statusString(s model.DocumentStatus) string {
	switch s {
	case model.StatusProcessed:
		return processedColor.Sprint(s)
	case model.StatusProcessing:
		return processingColor.Sprint(s)
	case model.StatusQueued:
		return queuedColor.Sprint(s)
	case model.StatusError:
		return errColor.Sprint(s)
	default:
		return string(s)
	}
}

func cmdUpload(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	path := fs.String("file", "", "document to upload")
	_ = fs.Parse(args)
	if *path == "" {
		fmt.Fprintln(os.Stderr, "need -file")
		os.Exit(1)
	}
	_, tenant := a.requireSession()

	f, err := os.Open(*path)
	if err != nil {
		fail(err)
	}
	defer f.Close()

	receipt, err := a.client.UploadDocument(ctx, tenant, filepath.Base(*path), f)
	if err != nil {
		// a duplicate is a distinct outcome, not a generic failure
		if errors.Is(err, errs.ErrDuplicate) {
			fmt.Fprintf(os.Stderr, "duplicate: %q already exists in the knowledge base\n", filepath.Base(*path))
			os.Exit(1)
		}
		fail(err)
	}
	fmt.Printf("queued %s as %s (task %s)\n", filepath.Base(*path), receipt.DocumentID, receipt.TaskID)
}

func printDocs(recs []model.DocumentRecord) {
	for _, rec := range recs {
		live := ""
		if rec.StorageExists != nil && !*rec.StorageExists {
			live = errColor.Sprint(" [missing in storage]")
		}
		line := fmt.Sprintf("%s  %-10s  %s  chunks=%d%s",
			rec.DocumentID, statusString(rec.Status), rec.FileName, rec.ChunkCount, live)
		if rec.ErrorMessage != "" {
			line += "  " + errColor.Sprint(rec.ErrorMessage)
		}
		fmt.Println(line)
	}
}

func cmdDocs(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("docs", flag.ExitOnError)
	all := fs.Bool("all", false, "fetch every page")
	fast := fs.Bool("fast", false, "skip storage/index live checks")
	page := fs.Int("page", 0, "page size (0 = default)")
	_ = fs.Parse(args)
	_, tenant := a.requireSession()

	sync := docsync.New(a.client, tenant, docsync.Options{PageSize: *page, SkipLiveChecks: *fast}, a.log)
	if err := sync.Resync(ctx); err != nil {
		fail(err)
	}
	if *all {
		for sync.HasMore() {
			if err := sync.FetchMore(ctx); err != nil {
				fail(err)
			}
		}
	}

	recs := sync.Snapshot()
	printDocs(recs)
	if sync.HasMore() {
		fmt.Printf("... more documents available (use -all)\n")
	}
	fmt.Printf("%d documents\n", len(recs))
}

// cmdDocsWatch polls the catalog until nothing is queued or processing.
func cmdDocsWatch(a *app, args []string) {
	fs := flag.NewFlagSet("docs-watch", flag.ExitOnError)
	interval := fs.Duration("interval", 5*time.Second, "poll interval")
	fast := fs.Bool("fast", false, "skip storage/index live checks")
	_ = fs.Parse(args)
	_, tenant := a.requireSession()

	sync := docsync.New(a.client, tenant, docsync.Options{SkipLiveChecks: *fast}, a.log)
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := sync.Resync(ctx)
		cancel()
		if err != nil {
			fail(err)
		}

		pending := 0
		counts := map[model.DocumentStatus]int{}
		for _, rec := range sync.Snapshot() {
			counts[rec.Status]++
			if rec.Status == model.StatusQueued || rec.Status == model.StatusProcessing {
				pending++
			}
		}
		fmt.Printf("%s  processed=%d processing=%d queued=%d error=%d\n",
			time.Now().Format("15:04:05"),
			counts[model.StatusProcessed], counts[model.StatusProcessing],
			counts[model.StatusQueued], counts[model.StatusError])

		if pending == 0 {
			fmt.Println("all documents settled")
			return
		}
		<-ticker.C
	}
}

func cmdDocStatus(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("doc-status", flag.ExitOnError)
	id := fs.String("id", "", "document id")
	_ = fs.Parse(args)
	if *id == "" {
		fmt.Fprintln(os.Stderr, "need -id")
		os.Exit(1)
	}
	_, tenant := a.requireSession()

	rec, err := a.client.DocumentStatus(ctx, tenant, *id)
	if err != nil {
		fail(err)
	}
	printJSON(rec)
}

func cmdDocRetry(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("doc-retry", flag.ExitOnError)
	id := fs.String("id", "", "document id")
	_ = fs.Parse(args)
	if *id == "" {
		fmt.Fprintln(os.Stderr, "need -id")
		os.Exit(1)
	}
	_, tenant := a.requireSession()

	receipt, err := a.client.RetryIngest(ctx, tenant, *id)
	if err != nil {
		fail(err)
	}
	fmt.Printf("retrying %s (task %s)\n", receipt.DocumentID, receipt.TaskID)
}

func cmdDocRm(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("doc-rm", flag.ExitOnError)
	id := fs.String("id", "", "document id")
	_ = fs.Parse(args)
	if *id == "" {
		fmt.Fprintln(os.Stderr, "need -id")
		os.Exit(1)
	}
	_, tenant := a.requireSession()

	if err := a.client.DeleteDocument(ctx, tenant, *id); err != nil {
		fail(err)
	}
	fmt.Println("ok")
}

func cmdDocRmBulk(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("doc-rm-bulk", flag.ExitOnError)
	ids := fs.String("ids", "", "comma-separated document ids")
	_ = fs.Parse(args)
	if *ids == "" {
		fmt.Fprintln(os.Stderr, "need -ids")
		os.Exit(1)
	}
	_, tenant := a.requireSession()

	res, err := a.client.BulkDeleteDocuments(ctx, tenant, strings.Split(*ids, ","))
	if err != nil {
		fail(err)
	}
	for _, id := range res.Deleted {
		fmt.Printf("deleted %s\n", id)
	}
	for _, f := range res.Failed {
		errColor.Fprintf(os.Stderr, "failed %s: %s\n", f.DocumentID, f.Reason)
	}
	if len(res.Failed) > 0 {
		fmt.Printf("%d deleted, %d failed\n", len(res.Deleted), len(res.Failed))
	}
}

func cmdDocStats(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("doc-stats", flag.ExitOnError)
	from := fs.String("from", "", "from date (YYYY-MM-DD)")
	to := fs.String("to", "", "to date (YYYY-MM-DD)")
	status := fs.String("status", "", "filter by status")
	_ = fs.Parse(args)
	_, tenant := a.requireSession()

	stats, err := a.client.DocumentStats(ctx, tenant, api.StatsFilter{
		FromDate: *from, ToDate: *to, Status: *status,
	})
	if err != nil {
		fail(err)
	}
	printJSON(stats)
}
