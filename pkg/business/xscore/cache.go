package xscore

import (
	"encoding/binary"
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/ristretto/v2"
)

// memoCache 评分结果的备忘缓存。
//
// 评分是纯函数，缓存命中与重算结果完全一致，因此缓存是安全的透明优化。
// 缓存键覆盖评分输入的全部内容（候选项字段 + 上下文），任何输入变化
// 都会落到不同的键上。nil 接收者等价于不缓存。
//
// 前提是参考时间显式给出：零值 Now 的上下文依赖墙钟，
// 由 Engine.Score 绕过缓存。
type memoCache struct {
	cache *ristretto.Cache[uint64, *Breakdown]
}

// newMemoCache 创建备忘缓存
func newMemoCache(size int64) (*memoCache, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[uint64, *Breakdown]{
		NumCounters: size * 10,
		MaxCost:     size,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &memoCache{cache: cache}, nil
}

// get 查询缓存
func (m *memoCache) get(item Item, sctx Context) (*Breakdown, bool) {
	if m == nil {
		return nil, false
	}
	return m.cache.Get(memoKey(item, sctx))
}

// put 写入缓存（异步准入，可能被丢弃）
func (m *memoCache) put(item Item, sctx Context, b *Breakdown) {
	if m == nil {
		return
	}
	m.cache.Set(memoKey(item, sctx), b, 1)
}

// memoKey 计算评分输入的哈希键
func memoKey(item Item, sctx Context) uint64 {
	d := xxhash.New()

	writeField(d, item.ID)
	writeField(d, strconv.FormatBool(item.Verified))
	writeInt64(d, item.UpdatedAt.UnixNano())
	writeStringMap(d, item.Labels)

	writeStringMap(d, sctx.Targets)
	writeInt64(d, sctx.Now.UnixNano())
	keys := sortedKeys(sctx.Alternates)
	for _, k := range keys {
		writeField(d, k)
		for _, alt := range sctx.Alternates[k] {
			writeField(d, alt)
		}
	}

	return d.Sum64()
}

func writeField(d *xxhash.Digest, s string) {
	d.WriteString(s)     //nolint:errcheck // xxhash 写入不会失败
	d.Write([]byte{0})   //nolint:errcheck
}

func writeInt64(d *xxhash.Digest, v int64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	d.Write(buf[:]) //nolint:errcheck // xxhash 写入不会失败
}

func writeStringMap(d *xxhash.Digest, m map[string]string) {
	for _, k := range sortedKeys(m) {
		writeField(d, k)
		writeField(d, m[k])
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
