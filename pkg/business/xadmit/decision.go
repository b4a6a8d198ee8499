package xadmit

import "time"

// Decision 单次准入裁决的结果
type Decision struct {
	// ID 裁决标识，全局唯一且大致随时间递增
	ID int64 `json:"id" bson:"id"`

	// Subject 请求主体
	Subject string `json:"subject" bson:"subject"`

	// Service 请求服务
	Service string `json:"service" bson:"service"`

	// Empty 排序结果为空（有效的空结果，不是错误）
	Empty bool `json:"empty,omitempty" bson:"empty,omitempty"`

	// WinnerID 胜出候选的标识，Empty 时为空
	WinnerID string `json:"winner_id,omitempty" bson:"winner_id,omitempty"`

	// Score 胜出候选的分数
	Score int `json:"score,omitempty" bson:"score,omitempty"`

	// Rationale 分数的人类可读解释
	Rationale string `json:"rationale,omitempty" bson:"rationale,omitempty"`

	// RemainingTokens 获取令牌后桶内剩余令牌数
	RemainingTokens float64 `json:"remaining_tokens" bson:"remaining_tokens"`

	// RemainingQuota 配额提交后最紧窗口的剩余量
	RemainingQuota int64 `json:"remaining_quota" bson:"remaining_quota"`

	// QuotaResetAt 最紧配额窗口的重置时间
	QuotaResetAt time.Time `json:"quota_reset_at,omitempty" bson:"quota_reset_at,omitempty"`

	// DecidedAt 裁决时间（UTC）
	DecidedAt time.Time `json:"decided_at" bson:"decided_at"`
}

// Err 将空结果转成哨兵错误，供偏好 error 风格检查的调用方使用。
// 非空裁决返回 nil。
func (d *Decision) Err() error {
	if d != nil && d.Empty {
		return ErrNoEligibleCandidates
	}
	return nil
}
