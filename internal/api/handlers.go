// 文件: internal/api/handlers.go
package api

import (
	"NAS_Gallery/config"
	"NAS_Gallery/internal/models"
	"NAS_Gallery/internal/task"
	"NAS_Gallery/pkg/database"
	"NAS_Gallery/pkg/hasher"
	"NAS_Gallery/pkg/maintenance"
	"NAS_Gallery/pkg/scanner"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
)

// defaultSearchDistance 以图搜图时允许的最大汉明距离
const defaultSearchDistance = 8

// APIHandlers 持有所有依赖
type APIHandlers struct {
	taskManager *task.Manager
	db          database.Store
	tags        *scanner.TagResolver
	configFile  string

	// configMu 串行化配置文件的写入与替换
	configMu sync.Mutex
}

// NewAPIHandlers 创建一个新的API处理器实例。
// tags 用于在别名变更后清空标签缓存，可以为 nil。
func NewAPIHandlers(tm *task.Manager, db database.Store, tags *scanner.TagResolver, configFile string) *APIHandlers {
	return &APIHandlers{
		taskManager: tm,
		db:          db,
		tags:        tags,
		configFile:  configFile,
	}
}

// --- 辅助函数 ---

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(err.Error()))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

func respondError(w http.ResponseWriter, code int, message string) {
	respondJSON(w, code, map[string]string{"error": message})
}

// pagination 解析 page/limit 查询参数
func pagination(r *http.Request) (page, limit int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	return page, limit
}

func paginated(data interface{}, page, limit int, total int64) map[string]interface{} {
	return map[string]interface{}{
		"data": data,
		"pagination": map[string]interface{}{
			"currentPage": page,
			"totalPages":  int(math.Ceil(float64(total) / float64(limit))),
			"totalItems":  total,
		},
	}
}

// --- 任务处理器 ---

func (h *APIHandlers) HandleStartScanTask(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Path string `json:"path"`
	}
	// 请求体可以为空，此时扫描配置中的根目录
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "无效的请求体: "+err.Error())
		return
	}
	taskID, err := h.taskManager.StartScan(payload.Path)
	if err != nil {
		if errors.Is(err, scanner.ErrScanInProgress) {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"taskId": taskID})
}

func (h *APIHandlers) HandleGetTaskStatus(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskId")
	status, err := h.taskManager.GetTaskStatus(taskID)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, status)
}

func (h *APIHandlers) HandleCancelTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskId")
	err := h.taskManager.Cancel(taskID)
	switch {
	case errors.Is(err, task.ErrTaskNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, task.ErrTaskFinished):
		respondError(w, http.StatusConflict, err.Error())
	case err != nil:
		respondError(w, http.StatusInternalServerError, err.Error())
	default:
		respondJSON(w, http.StatusAccepted, map[string]string{"taskId": taskID, "status": "cancelling"})
	}
}

// --- 相册处理器 ---

func (h *APIHandlers) HandleListAlbums(w http.ResponseWriter, r *http.Request) {
	page, limit := pagination(r)
	albums, total, err := h.db.Albums().List(r.Context(), page, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "无法获取相册列表: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, paginated(albums, page, limit, total))
}

func (h *APIHandlers) HandleListImagesByAlbum(w http.ResponseWriter, r *http.Request) {
	albumID := chi.URLParam(r, "albumID")
	album, err := h.db.Albums().GetByID(r.Context(), albumID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "无法获取相册: "+err.Error())
		return
	}
	if album == nil {
		respondError(w, http.StatusNotFound, "相册不存在")
		return
	}
	page, limit := pagination(r)
	images, total, err := h.db.Images().ListByAlbumID(r.Context(), albumID, page, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "无法获取图片列表: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, paginated(images, page, limit, total))
}

// --- 标签处理器 ---

// HandleListTags 按分类分组返回所有标签
func (h *APIHandlers) HandleListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.db.Tags().List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "无法获取标签列表: "+err.Error())
		return
	}
	grouped := make(map[models.TagCategory][]models.Tag, len(models.TagCategories))
	for _, c := range models.TagCategories {
		grouped[c] = []models.Tag{}
	}
	for _, t := range tags {
		grouped[t.Category] = append(grouped[t.Category], t)
	}
	respondJSON(w, http.StatusOK, grouped)
}

// HandleCreateAlias 为已存在的标签新增别名
func (h *APIHandlers) HandleCreateAlias(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Alias string `json:"alias"`
		Tag   string `json:"tag"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "无效的请求体: "+err.Error())
		return
	}
	payload.Alias = strings.TrimSpace(payload.Alias)
	payload.Tag = strings.TrimSpace(payload.Tag)
	if payload.Alias == "" || payload.Tag == "" {
		respondError(w, http.StatusBadRequest, "缺少 'alias' 或 'tag' 字段")
		return
	}

	tag, err := h.db.Tags().GetByName(r.Context(), payload.Tag)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "查询标签失败: "+err.Error())
		return
	}
	if tag == nil {
		respondError(w, http.StatusNotFound, "标签不存在: "+payload.Tag)
		return
	}
	alias, err := h.db.Tags().CreateAlias(r.Context(), payload.Alias, tag.ID)
	if err != nil {
		respondError(w, http.StatusConflict, "创建别名失败: "+err.Error())
		return
	}
	if h.tags != nil {
		h.tags.Flush()
	}
	respondJSON(w, http.StatusCreated, alias)
}

// --- 目录统计 ---

// HandleDirectoryStats 返回单个目录的图片/视频数量与总大小。
// 相对路径按扫描根目录解析。
func (h *APIHandlers) HandleDirectoryStats(w http.ResponseWriter, r *http.Request) {
	dir := r.URL.Query().Get("path")
	if dir == "" {
		respondError(w, http.StatusBadRequest, "缺少查询参数 'path'")
		return
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(config.Get().Scanner.RootDir, filepath.FromSlash(dir))
	}
	// ScanDirectory 对不存在的目录返回全零统计，接口层仍按 404 处理
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		respondError(w, http.StatusNotFound, "目录不存在")
		return
	}
	stats, err := scanner.ScanDirectory(dir, scanner.DefaultStatsImageExtensions, scanner.DefaultStatsVideoExtensions)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "统计目录失败: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// --- 搜索处理器 ---

func (h *APIHandlers) HandleSearchByImage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		respondError(w, http.StatusBadRequest, "无法解析表单: "+err.Error())
		return
	}
	distance := defaultSearchDistance
	if d, err := strconv.Atoi(r.FormValue("distance")); err == nil && d >= 0 {
		distance = d
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		respondError(w, http.StatusBadRequest, "获取上传文件失败: "+err.Error())
		return
	}
	defer file.Close()
	tempFile, err := os.CreateTemp("", "upload-*")
	if err != nil {
		respondError(w, http.StatusInternalServerError, "创建临时文件失败")
		return
	}
	defer os.Remove(tempFile.Name())
	if _, err := io.Copy(tempFile, file); err != nil {
		tempFile.Close()
		respondError(w, http.StatusInternalServerError, "写入临时文件失败")
		return
	}
	tempFile.Close()

	pHash, err := hasher.CalculatePerceptualHash(tempFile.Name())
	if err != nil {
		respondError(w, http.StatusBadRequest, "计算图片哈希失败: "+err.Error())
		return
	}
	matches, err := maintenance.FindSimilar(r.Context(), h.db.Fingerprints(), pHash, distance)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "数据库查找失败: "+err.Error())
		return
	}

	// 按相似度顺序保留不重复的相册
	seen := make(map[string]bool)
	var albumIDs []string
	for _, fp := range matches {
		if !seen[fp.AlbumID] {
			seen[fp.AlbumID] = true
			albumIDs = append(albumIDs, fp.AlbumID)
		}
	}
	albums := []models.Album{}
	if len(albumIDs) > 0 {
		found, err := h.db.Albums().GetByIDs(r.Context(), albumIDs)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "获取相册信息失败: "+err.Error())
			return
		}
		byID := make(map[string]models.Album, len(found))
		for _, a := range found {
			byID[a.ID] = a
		}
		for _, id := range albumIDs {
			if a, ok := byID[id]; ok {
				albums = append(albums, a)
			}
		}
	}
	respondJSON(w, http.StatusOK, paginated(albums, 1, max(len(albums), 1), int64(len(albums))))
}

// --- 配置处理器 ---

// HandleGetConfig 获取当前应用配置，数据库连接串中的密码被隐藏
func (h *APIHandlers) HandleGetConfig(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, config.Get().Redacted())
}

// HandleUpdateConfig 校验、保存并替换内存中的配置。
// 扫描相关的修改在下一次启动后生效。提交的连接串与隐藏后的当前值相同时保留原密码。
func (h *APIHandlers) HandleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var newConfig config.Config
	if err := json.NewDecoder(r.Body).Decode(&newConfig); err != nil {
		respondError(w, http.StatusBadRequest, "无效的配置格式: "+err.Error())
		return
	}
	if err := newConfig.Scanner.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.configMu.Lock()
	defer h.configMu.Unlock()
	if cur := config.Get(); cur != nil && newConfig.Database.URI == config.RedactURI(cur.Database.URI) {
		newConfig.Database.URI = cur.Database.URI
	}
	if err := config.Save(h.configFile, &newConfig); err != nil {
		respondError(w, http.StatusInternalServerError, "写入配置文件失败: "+err.Error())
		return
	}
	config.Set(&newConfig)
	respondJSON(w, http.StatusOK, newConfig.Redacted())
}
