package model

// All 需要迁移的表
func All() []any {
	return []any{
		&Profile{},
		&FollowEdge{},
		&FollowRequest{},
		&AccountIdentifier{},
		&HashedContact{},
		&RateLimitWindow{},
	}
}
