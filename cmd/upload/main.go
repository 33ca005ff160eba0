package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/avolkov/docpipe/internal/bootstrap"
	"github.com/avolkov/docpipe/internal/config"
	"github.com/avolkov/docpipe/internal/core/domain"
)

// upload puts a local document into the source bucket and publishes the
// trigger event that starts a workflow instance for it.
func main() {
	var (
		file   = flag.String("file", "", "path of the document to upload")
		bucket = flag.String("bucket", "", "target bucket (defaults to the configured source bucket)")
		key    = flag.String("key", "", "object key (defaults to the file's base name)")
	)
	flag.Parse()

	if *file == "" {
		log.Fatal("usage: upload -file <path> [-bucket <bucket>] [-key <key>]")
	}

	cfg := config.Load()
	if *bucket == "" {
		*bucket = cfg.SourceBucket
	}
	if *key == "" {
		*key = filepath.Base(*file)
	}
	if !domain.SupportedFile(*key) {
		log.Fatalf("unsupported document type: %s", *key)
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		log.Fatalf("read document: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	if err := app.Objects.Put(ctx, *bucket, *key, data); err != nil {
		log.Fatalf("store document: %v", err)
	}

	ev := domain.TriggerEvent{
		DeliveryID: uuid.NewString(),
		Records: []domain.TriggerRecord{{
			RequestID: uuid.NewString(),
			Document:  domain.DocumentRef{Bucket: *bucket, Key: *key},
		}},
	}
	if err := app.Queue.PublishTrigger(ctx, ev); err != nil {
		log.Fatalf("publish trigger: %v", err)
	}

	log.Printf("uploaded %s/%s and published trigger %s", *bucket, *key, ev.DeliveryID)
}
