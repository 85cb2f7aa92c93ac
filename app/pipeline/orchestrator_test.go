package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/foodsync/food-sync/app/drive"
	"github.com/foodsync/food-sync/app/imageproc"
	"github.com/foodsync/food-sync/app/ledger"
	"github.com/foodsync/food-sync/app/sheets"
)

type fakeSource struct {
	photos        []drive.Photo
	data          map[string][]byte
	downloadErr   map[string]error
	listCalls     int
	downloadCalls int
}

func (f *fakeSource) ListRecentPhotos(ctx context.Context, hoursBack, maxResults int) ([]drive.Photo, error) {
	f.listCalls++
	return f.photos, nil
}

func (f *fakeSource) Download(ctx context.Context, fileID string) ([]byte, error) {
	f.downloadCalls++
	if err := f.downloadErr[fileID]; err != nil {
		return nil, err
	}
	data, ok := f.data[fileID]
	if !ok {
		return nil, errors.New("file not found")
	}
	return data, nil
}

type fakeSheet struct {
	entries   []sheets.Entry
	failNext  int
	appendErr error
}

func (f *fakeSheet) AppendEntry(ctx context.Context, entry sheets.Entry) error {
	if f.failNext > 0 {
		f.failNext--
		return f.appendErr
	}
	f.entries = append(f.entries, entry)
	return nil
}

type fakeAnalyzer struct {
	foodNames     map[string]string // keyed by image content; "" means no food
	classifyErr   error
	classifyCalls int
	recipe        string
	recipeErr     error
}

func (f *fakeAnalyzer) ClassifyFood(ctx context.Context, imageData []byte) (string, bool, error) {
	f.classifyCalls++
	if f.classifyErr != nil {
		return "", false, f.classifyErr
	}
	name := f.foodNames[string(imageData)]
	if name == "" {
		return "", false, nil
	}
	return name, true, nil
}

func (f *fakeAnalyzer) GenerateRecipe(ctx context.Context, foodName string) (string, error) {
	if f.recipeErr != nil {
		return "", f.recipeErr
	}
	return f.recipe, nil
}

// passthrough skips real image decoding so the fakes can key off bytes.
func passthrough(data []byte, filename string) ([]byte, error) {
	return data, nil
}

func newTestLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l, err := ledger.NewLedger("")
	if err != nil {
		t.Fatalf("Failed to create ledger: %v", err)
	}
	return l
}

func TestRunOnce_FoodDetected(t *testing.T) {
	source := &fakeSource{
		photos: []drive.Photo{{ID: "A", Name: "lunch.jpg", ViewURL: "https://drive.google.com/view/A"}},
		data:   map[string][]byte{"A": []byte("jpeg-A")},
	}
	sheet := &fakeSheet{}
	analyzer := &fakeAnalyzer{
		foodNames: map[string]string{"jpeg-A": "Apple"},
		recipe:    "Slice and serve.",
	}
	led := newTestLedger(t)

	o := NewOrchestrator(source, sheet, analyzer, led, passthrough, 10)

	processed, err := o.RunOnce(context.Background(), 24)
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if processed != 1 {
		t.Errorf("Expected 1 processed, got %d", processed)
	}

	if len(sheet.entries) != 1 {
		t.Fatalf("Expected 1 sheet entry, got %d", len(sheet.entries))
	}
	entry := sheet.entries[0]
	if entry.FoodName != "Apple" {
		t.Errorf("Expected food name Apple, got %q", entry.FoodName)
	}
	if entry.Recipe != "Slice and serve." {
		t.Errorf("Expected recipe, got %q", entry.Recipe)
	}
	if entry.PhotoURL != "https://drive.google.com/view/A" {
		t.Errorf("Expected photo URL, got %q", entry.PhotoURL)
	}
	if entry.Date == "" {
		t.Error("Expected capture date to be set")
	}

	if !led.Contains("A") {
		t.Error("Photo A should be in the ledger after a successful sync")
	}
}

func TestRunOnce_NoFoodIsTerminal(t *testing.T) {
	source := &fakeSource{
		photos: []drive.Photo{{ID: "B", Name: "desk.png"}},
		data:   map[string][]byte{"B": []byte("png-B")},
	}
	sheet := &fakeSheet{}
	analyzer := &fakeAnalyzer{foodNames: map[string]string{}}
	led := newTestLedger(t)

	o := NewOrchestrator(source, sheet, analyzer, led, passthrough, 10)

	processed, err := o.RunOnce(context.Background(), 24)
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if processed != 0 {
		t.Errorf("Expected 0 processed, got %d", processed)
	}
	if len(sheet.entries) != 0 {
		t.Errorf("Expected no sheet entries, got %d", len(sheet.entries))
	}
	if !led.Contains("B") {
		t.Error("No-food outcome is terminal: B should be in the ledger")
	}

	// A second run must not classify B again
	if _, err := o.RunOnce(context.Background(), 24); err != nil {
		t.Fatalf("Second RunOnce failed: %v", err)
	}
	if analyzer.classifyCalls != 1 {
		t.Errorf("Expected exactly 1 classify call across runs, got %d", analyzer.classifyCalls)
	}
}

func TestRunOnce_DecoderUnavailableIsRetryEligible(t *testing.T) {
	if imageproc.HEIFSupported() {
		t.Skip("Built with heif tag, decoder is available")
	}

	source := &fakeSource{
		photos: []drive.Photo{{ID: "C", Name: "IMG_0042.heic"}},
		data:   map[string][]byte{"C": []byte("heic-C")},
	}
	sheet := &fakeSheet{}
	analyzer := &fakeAnalyzer{}
	led := newTestLedger(t)

	// Real normalizer: HEIC fails fast when the decoder is unavailable
	o := NewOrchestrator(source, sheet, analyzer, led, imageproc.Normalize, 10)

	if _, err := o.RunOnce(context.Background(), 24); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	if len(sheet.entries) != 0 {
		t.Error("Expected no sheet entries for undecodable photo")
	}
	if analyzer.classifyCalls != 0 {
		t.Error("Classifier should not be called when normalization fails")
	}
	if led.Contains("C") {
		t.Error("C must not be marked: a later run should retry it")
	}

	// Next run re-attempts the download
	if _, err := o.RunOnce(context.Background(), 24); err != nil {
		t.Fatalf("Second RunOnce failed: %v", err)
	}
	if source.downloadCalls != 2 {
		t.Errorf("Expected C to be re-downloaded on the next run, got %d downloads", source.downloadCalls)
	}
}

func TestRunOnce_DownloadFailureIsRetryEligible(t *testing.T) {
	source := &fakeSource{
		photos:      []drive.Photo{{ID: "J", Name: "brunch.jpg"}},
		data:        map[string][]byte{"J": []byte("jpeg-J")},
		downloadErr: map[string]error{"J": errors.New("download timeout")},
	}
	sheet := &fakeSheet{}
	analyzer := &fakeAnalyzer{foodNames: map[string]string{"jpeg-J": "Waffles"}, recipe: "r"}
	led := newTestLedger(t)

	o := NewOrchestrator(source, sheet, analyzer, led, passthrough, 10)

	processed, err := o.RunOnce(context.Background(), 24)
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if processed != 0 {
		t.Errorf("Expected 0 processed on download failure, got %d", processed)
	}
	if analyzer.classifyCalls != 0 {
		t.Errorf("Classifier should not be called when download fails, got %d calls", analyzer.classifyCalls)
	}
	if len(sheet.entries) != 0 {
		t.Errorf("Expected no sheet entries, got %d", len(sheet.entries))
	}
	if led.Contains("J") {
		t.Error("J must not be marked after a failed download")
	}

	// Retry on the next run: download recovers, photo goes through
	delete(source.downloadErr, "J")
	processed, err = o.RunOnce(context.Background(), 24)
	if err != nil {
		t.Fatalf("Second RunOnce failed: %v", err)
	}
	if processed != 1 {
		t.Errorf("Expected 1 processed on retry, got %d", processed)
	}
	if source.downloadCalls != 2 {
		t.Errorf("Expected 2 download attempts, got %d", source.downloadCalls)
	}
	if !led.Contains("J") {
		t.Error("J should be marked after the successful retry")
	}
	if len(sheet.entries) != 1 {
		t.Errorf("Expected 1 sheet entry, got %d", len(sheet.entries))
	}
}

func TestRunOnce_LedgeredPhotoMakesNoCollaboratorCalls(t *testing.T) {
	source := &fakeSource{
		photos: []drive.Photo{{ID: "D", Name: "old.jpg"}},
		data:   map[string][]byte{"D": []byte("jpeg-D")},
	}
	sheet := &fakeSheet{}
	analyzer := &fakeAnalyzer{foodNames: map[string]string{"jpeg-D": "Pasta"}}
	led := newTestLedger(t)
	if err := led.MarkProcessed("D"); err != nil {
		t.Fatalf("Failed to seed ledger: %v", err)
	}

	o := NewOrchestrator(source, sheet, analyzer, led, passthrough, 10)

	processed, err := o.RunOnce(context.Background(), 24)
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if processed != 0 {
		t.Errorf("Expected 0 processed, got %d", processed)
	}
	if source.downloadCalls != 0 {
		t.Errorf("Expected no downloads for ledgered photo, got %d", source.downloadCalls)
	}
	if analyzer.classifyCalls != 0 {
		t.Errorf("Expected no classify calls for ledgered photo, got %d", analyzer.classifyCalls)
	}
	if len(sheet.entries) != 0 {
		t.Errorf("Expected no sheet entries, got %d", len(sheet.entries))
	}
}

func TestRunOnce_SheetWriteFailureRetriesFromScratch(t *testing.T) {
	source := &fakeSource{
		photos: []drive.Photo{{ID: "E", Name: "dinner.jpg"}},
		data:   map[string][]byte{"E": []byte("jpeg-E")},
	}
	sheet := &fakeSheet{failNext: 1, appendErr: errors.New("quota exceeded")}
	analyzer := &fakeAnalyzer{
		foodNames: map[string]string{"jpeg-E": "Curry"},
		recipe:    "Simmer.",
	}
	led := newTestLedger(t)

	o := NewOrchestrator(source, sheet, analyzer, led, passthrough, 10)

	processed, err := o.RunOnce(context.Background(), 24)
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if processed != 0 {
		t.Errorf("Expected 0 processed on write failure, got %d", processed)
	}
	if led.Contains("E") {
		t.Error("E must not be marked after a failed sheet write")
	}

	// Retry on the next run: re-download, re-classify, append succeeds
	processed, err = o.RunOnce(context.Background(), 24)
	if err != nil {
		t.Fatalf("Second RunOnce failed: %v", err)
	}
	if processed != 1 {
		t.Errorf("Expected 1 processed on retry, got %d", processed)
	}
	if source.downloadCalls != 2 {
		t.Errorf("Expected 2 downloads, got %d", source.downloadCalls)
	}
	if analyzer.classifyCalls != 2 {
		t.Errorf("Expected 2 classify calls, got %d", analyzer.classifyCalls)
	}
	if !led.Contains("E") {
		t.Error("E should be marked after the successful retry")
	}
	if len(sheet.entries) != 1 {
		t.Errorf("Expected 1 sheet entry, got %d", len(sheet.entries))
	}
}

func TestRunOnce_RecipeFailureIsNonFatal(t *testing.T) {
	source := &fakeSource{
		photos: []drive.Photo{{ID: "F", Name: "cake.jpg", ViewURL: "url-F"}},
		data:   map[string][]byte{"F": []byte("jpeg-F")},
	}
	sheet := &fakeSheet{}
	analyzer := &fakeAnalyzer{
		foodNames: map[string]string{"jpeg-F": "Cake"},
		recipeErr: errors.New("model overloaded"),
	}
	led := newTestLedger(t)

	o := NewOrchestrator(source, sheet, analyzer, led, passthrough, 10)

	processed, err := o.RunOnce(context.Background(), 24)
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if processed != 1 {
		t.Errorf("Expected 1 processed, got %d", processed)
	}
	if len(sheet.entries) != 1 {
		t.Fatalf("Expected 1 sheet entry, got %d", len(sheet.entries))
	}
	if sheet.entries[0].Recipe != "" {
		t.Errorf("Expected empty recipe, got %q", sheet.entries[0].Recipe)
	}
	if !led.Contains("F") {
		t.Error("F should be marked despite the recipe failure")
	}
}

func TestRunOnce_UnsupportedExtensionSkippedBeforeDownload(t *testing.T) {
	source := &fakeSource{
		photos: []drive.Photo{{ID: "G", Name: "scan.tiff"}},
		data:   map[string][]byte{"G": []byte("tiff-G")},
	}
	sheet := &fakeSheet{}
	analyzer := &fakeAnalyzer{}
	led := newTestLedger(t)

	o := NewOrchestrator(source, sheet, analyzer, led, passthrough, 10)

	if _, err := o.RunOnce(context.Background(), 24); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if source.downloadCalls != 0 {
		t.Errorf("Unsupported extension should be skipped before download, got %d downloads", source.downloadCalls)
	}
	if led.Contains("G") {
		t.Error("G must not be marked; a future run skips it again deterministically")
	}
}

func TestRunOnce_ClassificationErrorIsRetryEligible(t *testing.T) {
	source := &fakeSource{
		photos: []drive.Photo{{ID: "H", Name: "soup.jpg"}},
		data:   map[string][]byte{"H": []byte("jpeg-H")},
	}
	sheet := &fakeSheet{}
	analyzer := &fakeAnalyzer{classifyErr: errors.New("api timeout")}
	led := newTestLedger(t)

	o := NewOrchestrator(source, sheet, analyzer, led, passthrough, 10)

	processed, err := o.RunOnce(context.Background(), 24)
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if processed != 0 {
		t.Errorf("Expected 0 processed, got %d", processed)
	}
	if led.Contains("H") {
		t.Error("H must not be marked after a classification transport error")
	}
	if len(sheet.entries) != 0 {
		t.Errorf("Expected no sheet entries, got %d", len(sheet.entries))
	}
}

func TestIdempotence_LedgerPersistedBetweenRuns(t *testing.T) {
	ledgerPath := filepath.Join(t.TempDir(), "processed_files.json")

	source := &fakeSource{
		photos: []drive.Photo{{ID: "A", Name: "lunch.jpg"}},
		data:   map[string][]byte{"A": []byte("jpeg-A")},
	}
	sheet := &fakeSheet{}
	analyzer := &fakeAnalyzer{foodNames: map[string]string{"jpeg-A": "Apple"}, recipe: "r"}

	led1, err := ledger.NewLedger(ledgerPath)
	if err != nil {
		t.Fatalf("Failed to create ledger: %v", err)
	}
	o1 := NewOrchestrator(source, sheet, analyzer, led1, passthrough, 10)
	if _, err := o1.RunOnce(context.Background(), 24); err != nil {
		t.Fatalf("First run failed: %v", err)
	}

	// Fresh process: reload the ledger from disk, same photos listed
	led2, err := ledger.NewLedger(ledgerPath)
	if err != nil {
		t.Fatalf("Failed to reload ledger: %v", err)
	}
	o2 := NewOrchestrator(source, sheet, analyzer, led2, passthrough, 10)
	if _, err := o2.RunOnce(context.Background(), 24); err != nil {
		t.Fatalf("Second run failed: %v", err)
	}

	if len(sheet.entries) != 1 {
		t.Errorf("Expected exactly 1 row across both runs, got %d", len(sheet.entries))
	}
}

func TestRunOnce_NormalizesFoodName(t *testing.T) {
	source := &fakeSource{
		photos: []drive.Photo{{ID: "I", Name: "pho.jpg"}},
		data:   map[string][]byte{"I": []byte("jpeg-I")},
	}
	sheet := &fakeSheet{}
	analyzer := &fakeAnalyzer{foodNames: map[string]string{"jpeg-I": "  Crème Brûlée  "}, recipe: "r"}
	led := newTestLedger(t)

	o := NewOrchestrator(source, sheet, analyzer, led, passthrough, 10)

	if _, err := o.RunOnce(context.Background(), 24); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if len(sheet.entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(sheet.entries))
	}
	if sheet.entries[0].FoodName != "Crème Brûlée" {
		t.Errorf("Expected trimmed food name, got %q", sheet.entries[0].FoodName)
	}
}

func TestMonitor_StopsOnContextCancel(t *testing.T) {
	source := &fakeSource{photos: nil}
	sheet := &fakeSheet{}
	analyzer := &fakeAnalyzer{}
	led := newTestLedger(t)

	o := NewOrchestrator(source, sheet, analyzer, led, passthrough, 10)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		o.Monitor(ctx, 10*time.Millisecond)
		close(done)
	}()

	// Let at least two cycles run, then cancel
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Monitor did not stop after context cancellation")
	}

	if source.listCalls < 2 {
		t.Errorf("Expected at least 2 cycles, got %d", source.listCalls)
	}

	stats := o.Stats()
	if stats.Cycles != source.listCalls {
		t.Errorf("Stats cycles %d should match list calls %d", stats.Cycles, source.listCalls)
	}
}

func TestStats_TracksProcessedAndErrors(t *testing.T) {
	source := &fakeSource{
		photos: []drive.Photo{{ID: "A", Name: "lunch.jpg"}},
		data:   map[string][]byte{"A": []byte("jpeg-A")},
	}
	sheet := &fakeSheet{}
	analyzer := &fakeAnalyzer{foodNames: map[string]string{"jpeg-A": "Apple"}, recipe: "r"}
	led := newTestLedger(t)

	o := NewOrchestrator(source, sheet, analyzer, led, passthrough, 10)

	if _, err := o.RunOnce(context.Background(), 24); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	stats := o.Stats()
	if stats.Cycles != 1 {
		t.Errorf("Expected 1 cycle, got %d", stats.Cycles)
	}
	if stats.Processed != 1 {
		t.Errorf("Expected 1 processed, got %d", stats.Processed)
	}
	if stats.LastError != "" {
		t.Errorf("Expected no last error, got %q", stats.LastError)
	}
	if stats.LastCycleAt.IsZero() {
		t.Error("Expected last cycle time to be set")
	}
}
