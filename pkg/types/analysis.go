package types

import "time"

// Transition is a significant behavior-to-behavior transition.
type Transition struct {
	From string  `json:"from"`
	To   string  `json:"to"`
	Z    float64 `json:"z"`
}

// LSATotals holds the marginal totals of the observed transition matrix.
type LSATotals struct {
	RowTotals  map[string]int `json:"rowTotals"`
	ColTotals  map[string]int `json:"colTotals"`
	GrandTotal int            `json:"grandTotal"`
}

// LSAResult is the output of a lag sequential analysis run. All matrices are
// keyed by the same behavior universe, AllBehaviors.
type LSAResult struct {
	Observed               map[string]map[string]int     `json:"observed"`
	AllBehaviors           []string                      `json:"allBehaviors"`
	Totals                 LSATotals                     `json:"totals"`
	Expected               map[string]map[string]float64 `json:"expected"`
	ZScores                map[string]map[string]float64 `json:"zScores"`
	SignificantTransitions []Transition                  `json:"significantTransitions"`
}

// FunnelStep is the aggregate for one canonical funnel stage.
type FunnelStep struct {
	Stage   string  `json:"stage"`
	Count   int     `json:"count"`
	Rate    float64 `json:"rate"`
	DropOff float64 `json:"dropOff"`
}

// HistogramBin is one session-duration histogram bucket.
type HistogramBin struct {
	Range string `json:"range"`
	Count int    `json:"count"`
}

// FunnelResult holds funnel and session metrics.
type FunnelResult struct {
	FunnelSteps              []FunnelStep   `json:"funnelSteps"`
	AvgSessionDuration       float64        `json:"avgSessionDuration"`
	TotalSessions            int            `json:"totalSessions"`
	AvgEventsPerSession      float64        `json:"avgEventsPerSession"`
	SessionDurationHistogram []HistogramBin `json:"sessionDurationHistogram"`
}

// DailyCount is the number of events on one calendar day (UTC).
type DailyCount struct {
	Date   string `json:"date"`
	Events int    `json:"events"`
}

// VerbCount is a verb frequency entry.
type VerbCount struct {
	Verb  string `json:"verb"`
	Count int    `json:"count"`
}

// ObjectCount is an object frequency entry.
type ObjectCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// OverviewResult holds batch-level KPIs.
type OverviewResult struct {
	TotalEvents    int           `json:"totalEvents"`
	ActiveUsers    int           `json:"activeUsers"`
	UniqueContents int           `json:"uniqueContents"`
	TopVerb        string        `json:"topVerb"`
	DailyActivity  []DailyCount  `json:"dailyActivity"`
	TopVerbs       []VerbCount   `json:"topVerbs"`
	TopObjects     []ObjectCount `json:"topObjects"`
}

// Analysis bundles the results of one pipeline run.
type Analysis struct {
	LSA      *LSAResult      `json:"lsa"`
	Funnel   *FunnelResult   `json:"funnel"`
	Overview *OverviewResult `json:"overview"`
	// RecordCount is the number of classified records the LSA ran over,
	// the same figure as ClassifiedCount.
	RecordCount     int `json:"recordCount"`
	ClassifiedCount int `json:"classifiedCount"`
	// RowCount is the number of input rows, classified or not.
	RowCount    int       `json:"rowCount"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// AnalysisRecord is the catalog entry for a stored analysis.
type AnalysisRecord struct {
	ID              string    `json:"id"`
	SourceFile      string    `json:"sourceFile"`
	RecordCount     int       `json:"recordCount"`
	ClassifiedCount int       `json:"classifiedCount"`
	GeneratedAt     time.Time `json:"generatedAt"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
	LSAKey          string    `json:"lsaKey"`
	FunnelKey       string    `json:"funnelKey"`
	OverviewKey     string    `json:"overviewKey"`
	SizeBytes       int64     `json:"sizeBytes"`
}
