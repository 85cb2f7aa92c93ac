package cfg

type Cfg struct {
	// Google configuration
	SheetID            string
	DriveFolderID      string
	ServiceAccountFile string

	// OpenAI configuration
	OpenAIAPIKey string

	// Application configuration
	LedgerPath      string
	PromptsFile     string
	Port            string
	IntervalMinutes int
	HoursBack       int
	MaxPhotosPerRun int
	Monitor         bool

	// Application metadata
	LogLevel string
	Version  string
}
