package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/foodsync/food-sync/app/drive"
	"github.com/foodsync/food-sync/app/imageproc"
	"github.com/foodsync/food-sync/app/sheets"
)

// monitorLookbackHours is the fixed discovery window used between monitor
// cycles. The window never grows to cover downtime: a photo must appear
// inside it at least once while unprocessed or it is never discovered.
const monitorLookbackHours = 24

// Stats is a snapshot of the orchestrator's counters for the status API.
type Stats struct {
	Cycles      int       `json:"cycles"`
	Processed   int       `json:"processed"`
	LastCycleAt time.Time `json:"last_cycle_at"`
	LastError   string    `json:"last_error,omitempty"`
}

// Orchestrator runs the discover -> filter -> per-photo pipeline, once or
// on a fixed interval. Photos are processed sequentially; each photo's
// outcome is independent of the others.
type Orchestrator struct {
	source    PhotoSource
	sheet     SheetWriter
	analyzer  FoodAnalyzer
	ledger    ProcessedLedger
	normalize Normalizer
	maxPhotos int

	mu    sync.Mutex
	stats Stats
}

func NewOrchestrator(source PhotoSource, sheet SheetWriter, analyzer FoodAnalyzer,
	ledger ProcessedLedger, normalize Normalizer, maxPhotos int) *Orchestrator {
	return &Orchestrator{
		source:    source,
		sheet:     sheet,
		analyzer:  analyzer,
		ledger:    ledger,
		normalize: normalize,
		maxPhotos: maxPhotos,
	}
}

// RunOnce executes one full cycle and returns the number of food photos
// synced to the sheet.
func (o *Orchestrator) RunOnce(ctx context.Context, hoursBack int) (int, error) {
	processed, err := o.runCycle(ctx, hoursBack)

	o.mu.Lock()
	o.stats.Cycles++
	o.stats.Processed += processed
	o.stats.LastCycleAt = time.Now()
	if err != nil {
		o.stats.LastError = err.Error()
	} else {
		o.stats.LastError = ""
	}
	o.mu.Unlock()

	return processed, err
}

// Stats returns a copy of the orchestrator counters.
func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stats
}

func (o *Orchestrator) runCycle(ctx context.Context, hoursBack int) (processed int, err error) {
	// A panic in any collaborator must not take down monitor mode.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panicked: %v", r)
		}
	}()

	slog.Info("Checking for photos", "hours_back", hoursBack)

	photos, err := o.source.ListRecentPhotos(ctx, hoursBack, o.maxPhotos)
	if err != nil {
		return 0, fmt.Errorf("failed to list photos: %w", err)
	}

	candidates := make([]drive.Photo, 0, len(photos))
	for _, photo := range photos {
		if o.ledger.Contains(photo.ID) {
			continue
		}
		candidates = append(candidates, photo)
	}

	if len(candidates) == 0 {
		slog.Info("No new photos found")
		return 0, nil
	}

	slog.Info("Found photos to process", "count", len(candidates))

	for _, photo := range candidates {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		if o.processPhoto(ctx, photo) {
			processed++
		}
	}

	slog.Info("Cycle completed", "processed", processed, "candidates", len(candidates))

	return processed, nil
}

// processPhoto runs one photo through download -> normalize -> classify ->
// recipe -> sheet. It returns true only when a row was appended and the
// photo marked. Failures are logged and skipped without marking, so a
// later run retries the photo from scratch; a confirmed no-food result is
// terminal and marked.
func (o *Orchestrator) processPhoto(ctx context.Context, photo drive.Photo) bool {
	slog.Info("Processing photo", "file", photo.Name, "id", photo.ID)

	if !imageproc.IsSupportedFormat(photo.Name) {
		slog.Warn("Unsupported format", "file", photo.Name)
		return false
	}

	data, err := o.source.Download(ctx, photo.ID)
	if err != nil {
		slog.Error("Failed to download photo", "file", photo.Name, "error", err)
		return false
	}

	normalized, err := o.normalize(data, photo.Name)
	if err != nil {
		if errors.Is(err, imageproc.ErrUnsupportedFormat) {
			slog.Warn("Unsupported format", "file", photo.Name, "error", err)
		} else {
			slog.Error("Failed to process image", "file", photo.Name, "error", err)
		}
		return false
	}

	foodName, found, err := o.analyzer.ClassifyFood(ctx, normalized)
	if err != nil {
		slog.Error("Failed to classify photo", "file", photo.Name, "error", err)
		return false
	}

	if !found {
		slog.Info("No food detected", "file", photo.Name)
		o.mark(photo)
		return false
	}

	foodName = normalizeFoodName(foodName)
	slog.Info("Food detected", "file", photo.Name, "food", foodName)

	recipe, err := o.analyzer.GenerateRecipe(ctx, foodName)
	if err != nil {
		// Non-fatal: the row is still written, just without a recipe.
		slog.Warn("Failed to generate recipe", "food", foodName, "error", err)
		recipe = ""
	}

	entry := sheets.Entry{
		Date:     time.Now().Format("2006-01-02 15:04:05"),
		FoodName: foodName,
		Recipe:   recipe,
		PhotoURL: photo.ViewURL,
	}

	if err := o.sheet.AppendEntry(ctx, entry); err != nil {
		slog.Error("Failed to log to sheet", "file", photo.Name, "food", foodName, "error", err)
		return false
	}

	o.mark(photo)
	slog.Info("Successfully processed", "file", photo.Name, "food", foodName)

	return true
}

func (o *Orchestrator) mark(photo drive.Photo) {
	if err := o.ledger.MarkProcessed(photo.ID); err != nil {
		slog.Error("Failed to update ledger", "file", photo.Name, "error", err)
	}
}

// Monitor repeats cycles at the given interval until the context is
// cancelled. Cycle failures are logged and the loop continues; discovery
// always uses the fixed 24 hour lookback window.
func (o *Orchestrator) Monitor(ctx context.Context, interval time.Duration) {
	slog.Info("Starting continuous monitoring", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	o.monitorCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Monitoring stopped")
			return
		case <-ticker.C:
			o.monitorCycle(ctx)
			slog.Info("Waiting until next check", "interval", interval)
		}
	}
}

func (o *Orchestrator) monitorCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := o.RunOnce(ctx, monitorLookbackHours); err != nil {
		slog.Error("Error during monitoring cycle", "error", err)
	}
}

func normalizeFoodName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}
