package main

import (
	"NAS_Gallery/config"
	"NAS_Gallery/pkg/database"
	"NAS_Gallery/pkg/database/driver"
	"NAS_Gallery/pkg/logger"
	"NAS_Gallery/pkg/maintenance"
	"NAS_Gallery/pkg/scanner"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
)

// app 在 PersistentPreRunE 中按需初始化
type app struct {
	configDir string
	logCloser io.Closer
	db        database.Store
}

func main() {
	a := &app{}
	root := &cobra.Command{
		Use:           "gallery",
		Short:         "NAS 图库索引工具",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadConfig(a.configDir); err != nil {
				return fmt.Errorf("无法加载配置: %w", err)
			}
			closer, err := logger.InitLogger(config.Get())
			if err != nil {
				return fmt.Errorf("无法初始化日志: %w", err)
			}
			a.logCloser = closer
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.configDir, "config", ".", "config.yaml 所在目录")

	root.AddCommand(
		a.scanCmd(),
		a.statsCmd(),
		a.backfillCmd(),
		a.duplicatesCmd(),
		a.aliasCmd(),
		a.albumsCmd(),
		a.manifestCmd(),
		a.dumpDatabaseCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err := root.ExecuteContext(ctx)
	a.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "错误:", err)
		stop()
		os.Exit(1)
	}
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close(context.Background())
	}
	if a.logCloser != nil {
		a.logCloser.Close()
	}
}

func (a *app) openDB(ctx context.Context) (database.Store, error) {
	if a.db != nil {
		return a.db, nil
	}
	db, err := driver.Open(ctx, config.Get().Database)
	if err != nil {
		return nil, err
	}
	a.db = db
	return db, nil
}

func (a *app) orchestrator(ctx context.Context) (*scanner.Orchestrator, error) {
	db, err := a.openDB(ctx)
	if err != nil {
		return nil, err
	}
	return scanner.NewOrchestrator(config.Get().Scanner, db)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) scanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan [root]",
		Short: "扫描媒体目录并写入目录库，root 为 scanner.rootDir 或其子目录",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := a.orchestrator(cmd.Context())
			if err != nil {
				return err
			}
			defer o.Close()

			root := ""
			if len(args) == 1 {
				root = args[0]
			}
			res, err := o.Scan(cmd.Context(), root)
			if printErr := printJSON(cmd.OutOrStdout(), res); printErr != nil {
				return printErr
			}
			if err != nil && !errors.Is(err, scanner.ErrCancelled) {
				return err
			}
			return nil
		},
	}
}

func (a *app) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <dir>",
		Short: "统计单个目录中的图片和视频",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := scanner.ScanDirectory(args[0], scanner.DefaultStatsImageExtensions, scanner.DefaultStatsVideoExtensions)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}
}

func (a *app) backfillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backfill",
		Short: "为缺少感知哈希的图片补算指纹",
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := a.orchestrator(cmd.Context())
			if err != nil {
				return err
			}
			defer o.Close()
			n, err := o.BackfillFingerprints(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "新增指纹 %d 条\n", n)
			return err
		},
	}
}

func (a *app) duplicatesCmd() *cobra.Command {
	var distance int
	cmd := &cobra.Command{
		Use:   "duplicates",
		Short: "列出感知哈希相近的图片组",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB(cmd.Context())
			if err != nil {
				return err
			}
			groups, err := maintenance.FindNearDuplicates(cmd.Context(), db.Fingerprints(), distance)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "发现 %d 组近似重复图片\n", len(groups))
			for i, g := range groups {
				fmt.Fprintf(out, "组 %d:\n", i+1)
				for _, fp := range g.Members {
					fmt.Fprintf(out, "  %s  album=%s  %s\n", fp.PHash, fp.AlbumID, fp.FileName)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&distance, "distance", 5, "最大汉明距离")
	return cmd
}

func (a *app) aliasCmd() *cobra.Command {
	alias := &cobra.Command{
		Use:   "alias",
		Short: "管理标签别名",
	}
	alias.AddCommand(&cobra.Command{
		Use:   "add <alias> <tag>",
		Short: "把别名指向已存在的标签",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB(cmd.Context())
			if err != nil {
				return err
			}
			tag, err := db.Tags().GetByName(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			if tag == nil {
				return fmt.Errorf("标签不存在: %s", args[1])
			}
			created, err := db.Tags().CreateAlias(cmd.Context(), args[0], tag.ID)
			if err != nil {
				return fmt.Errorf("创建别名失败: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "别名 '%s' -> '%s' (%s)\n", created.Alias, tag.Name, tag.ID)
			return nil
		},
	})
	return alias
}

func (a *app) albumsCmd() *cobra.Command {
	var page, limit int
	cmd := &cobra.Command{
		Use:   "albums",
		Short: "列出相册",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB(cmd.Context())
			if err != nil {
				return err
			}
			albums, total, err := db.Albums().List(cmd.Context(), page, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "总共找到 %d 个相册 (正在显示第 %d 页，每页 %d 个):\n", total, page, limit)
			for _, al := range albums {
				fmt.Fprintf(out, "ID: %s\n  Title: %s\n  Path: %s\n  Tags: %d\n  Blurhash: %t\n\n",
					al.ID, al.Title, al.Path, len(al.TagIDs), al.Blurhash != nil)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "分页页码")
	cmd.Flags().IntVar(&limit, "limit", 20, "每页数量")
	return cmd
}

func (a *app) manifestCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "为媒体库生成 sha256 文件清单",
		RunE: func(cmd *cobra.Command, args []string) error {
			m := maintenance.NewMaintenance(config.Get().Scanner.WorkerCount)
			root, _ := filepath.Abs(config.Get().Scanner.RootDir)
			path, err := m.GenerateFileManifest(cmd.Context(), root, out)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "backup", "清单输出目录")
	return cmd
}

func (a *app) dumpDatabaseCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "dump-database",
		Short: "使用 mongodump 备份数据库 (仅 mongo 驱动)",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch config.Get().Database.Driver {
			case "mongo", "mongodb":
			default:
				return fmt.Errorf("dump-database 只支持 mongo 驱动，当前为 '%s'", config.Get().Database.Driver)
			}
			m := maintenance.NewMaintenance(config.Get().Scanner.WorkerCount)
			path, err := m.BackupDatabase(cmd.Context(), config.Get().Database.URI, config.Get().Database.Name, out)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "backup", "备份输出目录")
	return cmd
}
