package pipeline

import (
	"context"

	"github.com/foodsync/food-sync/app/drive"
	"github.com/foodsync/food-sync/app/ledger"
	"github.com/foodsync/food-sync/app/openai"
	"github.com/foodsync/food-sync/app/sheets"
)

var (
	_ PhotoSource     = (*drive.Client)(nil)
	_ SheetWriter     = (*sheets.Client)(nil)
	_ FoodAnalyzer    = (*openai.Client)(nil)
	_ ProcessedLedger = (*ledger.Ledger)(nil)
)

// PhotoSource lists candidate photos and downloads their bytes.
type PhotoSource interface {
	ListRecentPhotos(ctx context.Context, hoursBack, maxResults int) ([]drive.Photo, error)
	Download(ctx context.Context, fileID string) ([]byte, error)
}

// SheetWriter appends food records to the spreadsheet.
type SheetWriter interface {
	AppendEntry(ctx context.Context, entry sheets.Entry) error
}

// FoodAnalyzer classifies photos and drafts recipes.
type FoodAnalyzer interface {
	ClassifyFood(ctx context.Context, imageData []byte) (name string, found bool, err error)
	GenerateRecipe(ctx context.Context, foodName string) (string, error)
}

// ProcessedLedger records which file IDs have already been handled.
type ProcessedLedger interface {
	Contains(id string) bool
	MarkProcessed(id string) error
}

// Normalizer converts raw photo bytes into the single encoding the
// analyzer accepts.
type Normalizer func(data []byte, filename string) ([]byte, error)
