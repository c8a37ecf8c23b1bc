package api

const RerankScoreThreshold = 0.5

type RerankRequest struct {
	// Required params
	Query     string
	Documents []string

	// Optional params
	Limit     int
	ModelName string
	Threshold *float64
}

type RerankResult struct {
	// Index refers to the position of the document in the request.
	Index int
	Score float64
}

type RerankResponse struct {
	Query   string
	Results []RerankResult

	ModelName string
}
