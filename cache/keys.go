package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/contextlab/ragpipe/types"
)

// BuildKey 由归一化查询、过滤条件与版本号派生缓存键。
// 同一语义的查询在同一版本下得到同一个键，版本递增后键必然不同。
func BuildKey(prefix string, query string, filters types.QueryFilters, version int64) string {
	h := sha256.New()
	h.Write([]byte(normalizeQuery(query)))
	h.Write([]byte{0})
	h.Write([]byte(canonicalFilters(filters)))
	h.Write([]byte{0})
	fmt.Fprintf(h, "%d", version)

	digest := hex.EncodeToString(h.Sum(nil))
	return prefix + ":" + digest
}

// normalizeQuery 小写并压缩空白，使等价查询共享缓存键
func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// canonicalFilters 将过滤条件序列化为与字段顺序无关的稳定字符串
func canonicalFilters(filters types.QueryFilters) string {
	if filters.Empty() {
		return ""
	}

	var b strings.Builder

	writeList := func(name string, values []string) {
		if len(values) == 0 {
			return
		}
		sorted := make([]string, len(values))
		copy(sorted, values)
		sort.Strings(sorted)
		b.WriteString(name)
		b.WriteString("=")
		b.WriteString(strings.Join(sorted, ","))
		b.WriteString(";")
	}

	writeList("topics", filters.TopicIDs)
	writeList("docs", filters.DocumentIDs)

	if filters.TimeFrom != nil {
		b.WriteString("from=")
		b.WriteString(filters.TimeFrom.UTC().Format(time.RFC3339))
		b.WriteString(";")
	}
	if filters.TimeTo != nil {
		b.WriteString("to=")
		b.WriteString(filters.TimeTo.UTC().Format(time.RFC3339))
		b.WriteString(";")
	}
	if filters.Geography != "" {
		b.WriteString("geo=")
		b.WriteString(filters.Geography)
		b.WriteString(";")
	}

	return b.String()
}
