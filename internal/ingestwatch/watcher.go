// Package ingestwatch feeds files dropped into an inbox directory to the
// ingest service. Delivery agents write a JSON document per source file;
// the watcher picks it up, registers it, and renames it out of the way.
package ingestwatch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/cardworks/recon/internal/service"
)

// Actor is the audit identity the watcher ingests under. It must exist
// as an active user with ingest rights.
const Actor = "admin"

const processedSuffix = ".done"

// readRetryMaxElapsed bounds how long we wait for a dropped file to become
// well-formed JSON. Delivery agents that write in place produce short-lived
// partial files; ones that take longer than this are treated as corrupt.
const readRetryMaxElapsed = 15 * time.Second

// Watcher ingests payload files from a drop directory.
type Watcher struct {
	svc *service.Service
	dir string
}

func New(svc *service.Service, dir string) *Watcher {
	return &Watcher{svc: svc, dir: dir}
}

// Run watches the drop directory until the context is cancelled. Files
// already present at startup are processed first, so a restart never
// strands a delivery.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("ingestwatch: create inbox: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("ingestwatch: create watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("ingestwatch: watch %s: %w", w.dir, err)
	}

	w.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) {
				continue
			}
			if !isPayload(ev.Name) {
				continue
			}
			w.process(ctx, ev.Name)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Printf("ingestwatch: watch error: %v", err)
		}
	}
}

// sweep processes payload files already sitting in the inbox.
func (w *Watcher) sweep(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		log.Printf("ingestwatch: read inbox: %v", err)
		return
	}
	for _, e := range entries {
		if e.IsDir() || !isPayload(e.Name()) {
			continue
		}
		w.process(ctx, filepath.Join(w.dir, e.Name()))
	}
}

func isPayload(name string) bool {
	return strings.HasSuffix(name, ".json") && !strings.HasSuffix(name, processedSuffix)
}

func (w *Watcher) process(ctx context.Context, path string) {
	req, err := w.readPayload(ctx, path)
	if err != nil {
		log.Printf("ingestwatch: %s: %v", filepath.Base(path), err)
		return
	}

	res, err := w.svc.Ingest(ctx, Actor, "inbox", req)
	if err != nil {
		log.Printf("ingestwatch: ingest %s: %v", filepath.Base(path), err)
		return
	}

	if res.Duplicate {
		log.Printf("ingestwatch: %s already registered as file %s", filepath.Base(path), res.FileID)
	} else {
		log.Printf("ingestwatch: registered %s as file %s (%d records)", filepath.Base(path), res.FileID, res.RecordCount)
	}

	if err := os.Rename(path, path+processedSuffix); err != nil {
		log.Printf("ingestwatch: rename %s: %v", filepath.Base(path), err)
	}
}

// readPayload reads and decodes a dropped file, retrying while the file is
// still being written. A parse failure is retried; a vanished file is not.
func (w *Watcher) readPayload(ctx context.Context, path string) (*service.IngestRequest, error) {
	var req service.IngestRequest
	var raw []byte

	// BackOff implementations are stateful; always use a fresh instance.
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = readRetryMaxElapsed

	err := backoff.Retry(func() error {
		var err error
		raw, err = os.ReadFile(path)
		if os.IsNotExist(err) {
			return backoff.Permanent(err)
		}
		if err != nil {
			return err
		}
		req = service.IngestRequest{}
		if err := json.Unmarshal(raw, &req); err != nil {
			return err // Likely a partial write - retry.
		}
		return nil
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}

	if req.FileName == "" {
		req.FileName = filepath.Base(path)
	}
	if req.Checksum == "" {
		sum := sha256.Sum256(raw)
		req.Checksum = hex.EncodeToString(sum[:])
	}
	return &req, nil
}
