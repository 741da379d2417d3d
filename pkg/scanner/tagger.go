package scanner

import (
	"NAS_Gallery/internal/models"
	"NAS_Gallery/pkg/database"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/mozillazg/go-unidecode"
	"github.com/patrickmn/go-cache"
)

// seriesDelimiter 分隔相册目录名中的 coser、作品和角色
const seriesDelimiter = " - "

// TagRef 是从路径中解析出、尚未落库的标签
type TagRef struct {
	Name     string
	Category models.TagCategory
}

// ParsePathTags 从相对路径解析标签：
// 第一段目录为 coser；第二段目录按 " - " 切分，第二、三个片段分别为作品和角色。
func ParsePathTags(rel string) []TagRef {
	segments := strings.Split(filepath.ToSlash(rel), "/")
	var refs []TagRef

	if len(segments) >= 2 {
		if name := strings.TrimSpace(segments[0]); name != "" {
			refs = append(refs, TagRef{Name: name, Category: models.TagCoser})
		}
	}
	if len(segments) >= 3 {
		tokens := strings.Split(segments[1], seriesDelimiter)
		if len(tokens) >= 2 {
			if name := strings.TrimSpace(tokens[1]); name != "" {
				refs = append(refs, TagRef{Name: name, Category: models.TagSeries})
			}
		}
		if len(tokens) >= 3 {
			if name := strings.TrimSpace(tokens[2]); name != "" {
				refs = append(refs, TagRef{Name: name, Category: models.TagCharacter})
			}
		}
	}
	return refs
}

// TagInitial 返回名称转写为 ASCII 后的首字母，用于按字母索引浏览。
func TagInitial(name string) string {
	return string(findFirstAlphaNum(unidecode.Unidecode(name)))
}

// findFirstAlphaNum 由第一个字母或数字决定索引，只有 A-Z 归入字母，其余归入 '#'
func findFirstAlphaNum(s string) rune {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			r = unicode.ToUpper(r)
			if r >= 'A' && r <= 'Z' {
				return r
			}
			return '#'
		}
	}
	return '#'
}

// TagResolver 把路径片段解析为规范标签：别名 -> 同名标签 -> 新建。
// 解析结果缓存 ttl 时长，同一扫描中重复出现的片段不再访问数据库。
type TagResolver struct {
	tags  database.TagStore
	cache *cache.Cache
}

func NewTagResolver(tags database.TagStore, ttl time.Duration) *TagResolver {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &TagResolver{
		tags:  tags,
		cache: cache.New(ttl, 2*ttl),
	}
}

// Flush 清空缓存，别名变更后调用
func (r *TagResolver) Flush() {
	r.cache.Flush()
}

// Resolve 返回 name 对应的规范标签，必要时以 category 创建。
func (r *TagResolver) Resolve(ctx context.Context, name string, category models.TagCategory) (*models.Tag, error) {
	if cached, ok := r.cache.Get(name); ok {
		return cached.(*models.Tag), nil
	}

	tag, err := r.lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	if tag == nil {
		tag, err = r.create(ctx, name, category)
		if err != nil {
			return nil, err
		}
	}
	r.cache.Set(name, tag, cache.DefaultExpiration)
	return tag, nil
}

func (r *TagResolver) lookup(ctx context.Context, name string) (*models.Tag, error) {
	tag, err := r.tags.FindAlias(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("查询别名 '%s' 失败: %w", name, err)
	}
	if tag != nil {
		return tag, nil
	}
	tag, err = r.tags.GetByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("查询标签 '%s' 失败: %w", name, err)
	}
	return tag, nil
}

func (r *TagResolver) create(ctx context.Context, name string, category models.TagCategory) (*models.Tag, error) {
	tag := &models.Tag{
		Name:      name,
		Category:  category,
		Initial:   TagInitial(name),
		CreatedAt: time.Now(),
	}
	if err := r.tags.Create(ctx, tag); err != nil {
		// 可能与另一个扫描同时创建了同名标签，重新查询一次
		existing, lookupErr := r.tags.GetByName(ctx, name)
		if lookupErr == nil && existing != nil {
			return existing, nil
		}
		return nil, fmt.Errorf("创建标签 '%s' 失败: %w", name, err)
	}
	slog.Debug("创建新标签", "name", name, "category", category)
	return tag, nil
}

// ResolveAll 解析相对路径上的全部标签，按 ID 去重。
func (r *TagResolver) ResolveAll(ctx context.Context, rel string) ([]models.Tag, error) {
	refs := ParsePathTags(rel)
	tags := make([]models.Tag, 0, len(refs))
	seen := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		tag, err := r.Resolve(ctx, ref.Name, ref.Category)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[tag.ID]; ok {
			continue
		}
		seen[tag.ID] = struct{}{}
		tags = append(tags, *tag)
	}
	return tags, nil
}
