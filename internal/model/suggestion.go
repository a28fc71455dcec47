package model

// SuggestionType 推荐来源
type SuggestionType string

const (
	SuggestMutualConnections SuggestionType = "mutual_connections"
	SuggestCommunityLeader   SuggestionType = "community_leader"
	SuggestLocationBased     SuggestionType = "location_based"
	SuggestSimilarInterests  SuggestionType = "similar_interests"
)

// SuggestionCandidate 推荐候选（按请求计算，不落库）
type SuggestionCandidate struct {
	CandidateUserID       string         `json:"candidate_user_id"`
	SuggestionType        SuggestionType `json:"suggestion_type"`
	MutualConnectionCount int            `json:"mutual_connection_count"`
	RankScore             float64        `json:"rank_score"`
	Profile               PublicProfile  `json:"profile"`
}
