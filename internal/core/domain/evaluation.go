package domain

const MaxRelevanceScore = 3

type GroundTruthChunk struct {
	ChunkID        string `json:"chunkId"`
	FileName       string `json:"fileName"`
	RelevanceScore int    `json:"relevanceScore"`
}

type GroundTruthQuery struct {
	QueryID        string             `json:"queryId"`
	Query          string             `json:"query"`
	StakeholderID  string             `json:"stakeholderId"`
	RelevantChunks []GroundTruthChunk `json:"relevantChunks"`
}

type QueryEvaluation struct {
	QueryID       string  `json:"query_id"`
	StakeholderID string  `json:"stakeholder_id"`
	K             int     `json:"k"`
	Retrieved     int     `json:"retrieved"`
	Precision     float64 `json:"precision"`
	Recall        float64 `json:"recall"`
	F1            float64 `json:"f1"`
	MRR           float64 `json:"mrr"`
	NDCG          float64 `json:"ndcg"`
	FileCoverage  float64 `json:"file_coverage"`
}

type EvaluationReport struct {
	K       int               `json:"k"`
	Queries []QueryEvaluation `json:"queries"`
	Mean    QueryEvaluation   `json:"mean"`
}
