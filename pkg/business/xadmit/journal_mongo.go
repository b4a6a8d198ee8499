package xadmit

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/mongo"
)

// mongoJournal Journal 接口的 MongoDB 实现，每条裁决一个文档。
//
// 集合由调用方注入，索引和 TTL 策略也由调用方管理——
// 日志组件不替调用方决定数据的生命周期。
type mongoJournal struct {
	coll *mongo.Collection
}

// NewMongoJournal 创建 MongoDB 裁决日志
func NewMongoJournal(coll *mongo.Collection) (Journal, error) {
	if coll == nil {
		return nil, fmt.Errorf("%w: mongo collection", ErrNilDependency)
	}
	return &mongoJournal{coll: coll}, nil
}

// Record 插入一条裁决文档
func (j *mongoJournal) Record(ctx context.Context, d *Decision) error {
	if d == nil {
		return nil
	}
	if _, err := j.coll.InsertOne(ctx, d); err != nil {
		return fmt.Errorf("xadmit: journal insert: %w", err)
	}
	return nil
}

// Close 释放资源（客户端由调用方管理，这里无事可做）
func (j *mongoJournal) Close(context.Context) error {
	return nil
}

// 确保 mongoJournal 实现了 Journal 接口
var _ Journal = (*mongoJournal)(nil)
