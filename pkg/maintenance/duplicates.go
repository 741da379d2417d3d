package maintenance

import (
	"NAS_Gallery/internal/models"
	"NAS_Gallery/pkg/database"
	"NAS_Gallery/pkg/hasher"
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// DuplicateGroup 是一组两两可达 (距离不超过阈值) 的近似重复图片
type DuplicateGroup struct {
	Members []models.Fingerprint `json:"members"`
}

// FindNearDuplicates 把感知哈希距离不超过 maxDistance 的指纹聚成组。
// 只做检测，不合并也不删除任何记录。
func FindNearDuplicates(ctx context.Context, store database.FingerprintStore, maxDistance int) ([]DuplicateGroup, error) {
	fps, err := store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("读取指纹失败: %w", err)
	}

	// 并查集
	parent := make([]int, len(fps))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}

	for i := 0; i < len(fps); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for j := i + 1; j < len(fps); j++ {
			dist, err := hasher.PHashDistance(fps[i].PHash, fps[j].PHash)
			if err != nil {
				slog.Debug("跳过无法比较的指纹", "a", fps[i].ImageID, "b", fps[j].ImageID, "error", err)
				continue
			}
			if dist <= maxDistance {
				parent[find(i)] = find(j)
			}
		}
	}

	byRoot := make(map[int][]models.Fingerprint)
	for i := range fps {
		r := find(i)
		byRoot[r] = append(byRoot[r], fps[i])
	}

	var groups []DuplicateGroup
	for _, members := range byRoot {
		if len(members) < 2 {
			continue
		}
		sort.Slice(members, func(a, b int) bool { return members[a].ImageID < members[b].ImageID })
		groups = append(groups, DuplicateGroup{Members: members})
	}
	sort.Slice(groups, func(a, b int) bool {
		return groups[a].Members[0].ImageID < groups[b].Members[0].ImageID
	})
	return groups, nil
}

// FindSimilar 返回与 pHash 距离不超过 maxDistance 的指纹，按距离升序。
func FindSimilar(ctx context.Context, store database.FingerprintStore, pHash string, maxDistance int) ([]models.Fingerprint, error) {
	fps, err := store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("读取指纹失败: %w", err)
	}
	type scored struct {
		fp   models.Fingerprint
		dist int
	}
	var matches []scored
	for _, fp := range fps {
		dist, err := hasher.PHashDistance(pHash, fp.PHash)
		if err != nil || dist > maxDistance {
			continue
		}
		matches = append(matches, scored{fp, dist})
	}
	sort.SliceStable(matches, func(a, b int) bool { return matches[a].dist < matches[b].dist })

	out := make([]models.Fingerprint, len(matches))
	for i, m := range matches {
		out[i] = m.fp
	}
	return out, nil
}
