// Package storagetier implements SSD/HDD tiering: cold-file discovery by
// access time, archive moves that preserve relative path layout, and
// fast-tier usage monitoring (spec §4.12), ported from the Python
// prototype's storage_manager.py.
package storagetier

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// Config configures the tiering policy.
type Config struct {
	FastTierPath      string   // e.g. /home/pi/autonomous_ai (the "SSD")
	ArchivePath       string   // e.g. /mnt/hdd/archive (the "HDD")
	AccessThresholdDays int    // default 30
	ExcludePatterns   []string // glob patterns matched against the basename
}

func defaultExcludePatterns() []string {
	return []string{"*.log", "*.tmp", ".git/*", "__pycache__/*"}
}

// Tierer moves cold files from the fast tier to the archive tier.
type Tierer struct {
	fastTierPath string
	archivePath  string
	thresholdDays int
	excludePatterns []string
}

// New builds a Tierer, applying the prototype's defaults where cfg leaves
// fields zero.
func New(cfg Config) *Tierer {
	threshold := cfg.AccessThresholdDays
	if threshold == 0 {
		threshold = 30
	}
	patterns := cfg.ExcludePatterns
	if patterns == nil {
		patterns = defaultExcludePatterns()
	}
	return &Tierer{
		fastTierPath:    cfg.FastTierPath,
		archivePath:     cfg.ArchivePath,
		thresholdDays:   threshold,
		excludePatterns: patterns,
	}
}

func (t *Tierer) shouldExclude(relPath string) bool {
	base := filepath.Base(relPath)
	for _, pattern := range t.excludePatterns {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
		if ok, _ := filepath.Match(pattern, relPath); ok {
			return true
		}
	}
	return false
}

// ColdFile is one file discovered as stale under the access-time threshold.
type ColdFile struct {
	Path  string
	Size  int64
	Atime time.Time
}

// accessTime extracts the last-access time from a stat result. Linux-only
// (syscall.Stat_t), matching the project's single-board-computer target.
func accessTime(info os.FileInfo) time.Time {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return info.ModTime()
	}
	return time.Unix(stat.Atim.Sec, stat.Atim.Nsec)
}

// FindColdFiles walks the fast tier and returns every file whose access
// time is older than thresholdDays (the Tierer's configured default when
// overrideDays is 0).
func (t *Tierer) FindColdFiles(overrideDays int) ([]ColdFile, error) {
	days := t.thresholdDays
	if overrideDays > 0 {
		days = overrideDays
	}
	cutoff := time.Now().Add(-time.Duration(days) * 24 * time.Hour)

	var cold []ColdFile
	err := filepath.Walk(t.fastTierPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // best-effort: skip unreadable entries
		}
		if info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(t.fastTierPath, path)
		if relErr != nil {
			rel = path
		}
		if t.shouldExclude(rel) {
			return nil
		}
		atime := accessTime(info)
		if atime.Before(cutoff) {
			cold = append(cold, ColdFile{Path: path, Size: info.Size(), Atime: atime})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cold, nil
}

// MoveResult is one file's archive outcome.
type MoveResult struct {
	Src  string
	Dst  string
	Size int64
}

// ArchiveResult summarizes one archive_old_files run.
type ArchiveResult struct {
	TotalFiles  int
	MovedFiles  int
	FailedFiles int
	TotalSize   int64
	DryRun      bool
	Moved       []MoveResult
}

// moveToArchive relocates a single fast-tier file into the archive tier,
// preserving its relative path. If the destination already exists, the
// basename is suffixed with a numeric collision counter.
func (t *Tierer) moveToArchive(src string) (string, error) {
	rel, err := filepath.Rel(t.fastTierPath, src)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(t.archivePath, rel)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	dst = resolveCollision(dst)
	if err := moveFile(src, dst); err != nil {
		return "", err
	}
	return dst, nil
}

func resolveCollision(dst string) string {
	if _, err := os.Stat(dst); os.IsNotExist(err) {
		return dst
	}
	ext := filepath.Ext(dst)
	base := dst[:len(dst)-len(ext)]
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s.%d%s", base, i, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

// moveFile renames, falling back to copy+remove across filesystem/device
// boundaries (os.Rename fails with EXDEV when src/dst are on different
// mounts, which is the normal case for SSD->HDD archiving).
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

// ArchiveColdFiles finds every cold file and, unless dryRun, moves it to
// the archive tier, preserving relative layout.
func (t *Tierer) ArchiveColdFiles(dryRun bool) (ArchiveResult, error) {
	cold, err := t.FindColdFiles(0)
	if err != nil {
		return ArchiveResult{}, err
	}
	result := ArchiveResult{TotalFiles: len(cold), DryRun: dryRun}

	for _, f := range cold {
		result.TotalSize += f.Size
		if dryRun {
			result.MovedFiles++
			result.Moved = append(result.Moved, MoveResult{Src: f.Path, Dst: "(dry-run)", Size: f.Size})
			continue
		}
		dst, err := t.moveToArchive(f.Path)
		if err != nil {
			result.FailedFiles++
			continue
		}
		result.MovedFiles++
		result.Moved = append(result.Moved, MoveResult{Src: f.Path, Dst: dst, Size: f.Size})
	}
	return result, nil
}

// Usage reports a tier's total/used/free bytes and percent-used.
type Usage struct {
	Total, Used, Free uint64
	Percent           float64
}

func diskUsage(path string) (Usage, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return Usage{}, err
	}
	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bfree * uint64(stat.Bsize)
	used := total - free
	var pct float64
	if total > 0 {
		pct = (float64(used) / float64(total)) * 100
	}
	return Usage{Total: total, Used: used, Free: free, Percent: pct}, nil
}

// FastTierUsage reports the fast tier's disk usage.
func (t *Tierer) FastTierUsage() (Usage, error) { return diskUsage(t.fastTierPath) }

// ArchiveUsage reports the archive tier's disk usage.
func (t *Tierer) ArchiveUsage() (Usage, error) { return diskUsage(t.archivePath) }

// MonitorAlert is a non-nil result of MonitorFastTier when usage exceeds
// thresholdPercent.
type MonitorAlert struct {
	Percent        float64
	Message        string
	Recommendation string
}

// MonitorFastTier checks fast-tier usage against thresholdPercent (the
// prototype's default is 80.0) and returns an alert if it is exceeded.
func (t *Tierer) MonitorFastTier(thresholdPercent float64) (*MonitorAlert, error) {
	usage, err := t.FastTierUsage()
	if err != nil {
		return nil, err
	}
	if usage.Percent <= thresholdPercent {
		return nil, nil
	}
	return &MonitorAlert{
		Percent:        usage.Percent,
		Message:        fmt.Sprintf("fast tier usage reached %.1f%%", usage.Percent),
		Recommendation: "run archive_cold_files to free space",
	}, nil
}

// Summary renders a Markdown usage + archive-candidate digest.
func (t *Tierer) Summary() string {
	fast, fastErr := t.FastTierUsage()
	archive, archiveErr := t.ArchiveUsage()
	cold, _ := t.FindColdFiles(0)

	const gb = 1024 * 1024 * 1024
	var b strings.Builder
	b.WriteString("# Storage summary\n\n## Fast tier\n")
	if fastErr == nil {
		fmt.Fprintf(&b, "- total: %.2f GB\n", float64(fast.Total)/gb)
		fmt.Fprintf(&b, "- used: %.2f GB\n", float64(fast.Used)/gb)
		fmt.Fprintf(&b, "- free: %.2f GB\n", float64(fast.Free)/gb)
		fmt.Fprintf(&b, "- percent: %.1f%%\n", fast.Percent)
	}
	b.WriteString("\n## Archive tier\n")
	if archiveErr == nil {
		fmt.Fprintf(&b, "- total: %.2f GB\n", float64(archive.Total)/gb)
		fmt.Fprintf(&b, "- used: %.2f GB\n", float64(archive.Used)/gb)
		fmt.Fprintf(&b, "- free: %.2f GB\n", float64(archive.Free)/gb)
		fmt.Fprintf(&b, "- percent: %.1f%%\n", archive.Percent)
	}
	fmt.Fprintf(&b, "\n## Archive candidates\n- unaccessed for %d+ days: %d files\n", t.thresholdDays, len(cold))
	return b.String()
}
