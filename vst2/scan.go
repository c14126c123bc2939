package vst2

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/pipelined/host/log"
)

// Libraries are plugin files grouped by directory.
type Libraries map[string][]string

// DefaultScanPaths returns platform plugin directories. VST_PATH
// environment variable is appended if set.
func DefaultScanPaths() []string {
	var paths []string
	switch runtime.GOOS {
	case "darwin":
		paths = []string{
			"~/Library/Audio/Plug-Ins/VST",
			"/Library/Audio/Plug-Ins/VST",
		}
	case "windows":
		paths = []string{
			"C:\\Program Files (x86)\\Steinberg\\VSTPlugins",
			"C:\\Program Files\\Steinberg\\VSTPlugins",
		}
	default:
		paths = []string{
			"/usr/lib/vst",
			"/usr/local/lib/vst",
		}
	}
	if envPath := os.Getenv("VST_PATH"); envPath != "" {
		paths = append(paths, filepath.SplitList(envPath)...)
	}
	return paths
}

// FileExtension returns extension of plugin files on this platform.
func FileExtension() string {
	switch runtime.GOOS {
	case "darwin":
		return ".vst"
	case "windows":
		return ".dll"
	default:
		return ".so"
	}
}

// Scan walks paths and returns plugin files found. Plugins are not
// loaded. Unreadable paths are logged and skipped.
func Scan(paths ...string) Libraries {
	l := log.GetLogger()
	ext := FileExtension()
	libs := make(Libraries)
	for _, path := range uniquePaths(paths) {
		err := filepath.Walk(expandHome(path), func(path string, file os.FileInfo, err error) error {
			if err != nil {
				l.Debug(fmt.Sprintf("scan %v: %v", path, err))
				return nil
			}
			if strings.HasSuffix(file.Name(), ext) {
				dir := filepath.Dir(path)
				libs[dir] = append(libs[dir], path)
				// .vst bundles are directories.
				if file.IsDir() {
					return filepath.SkipDir
				}
			}
			return nil
		})
		if err != nil {
			l.Warn(fmt.Sprintf("scan %v: %v", path, err))
		}
	}
	for dir := range libs {
		sort.Strings(libs[dir])
	}
	return libs
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

func uniquePaths(paths []string) []string {
	u := make([]string, 0, len(paths))
	m := make(map[string]bool)
	for _, val := range paths {
		if _, ok := m[val]; !ok {
			m[val] = true
			u = append(u, val)
		}
	}
	return u
}

func (libraries Libraries) String() string {
	dirs := make([]string, 0, len(libraries))
	for dir := range libraries {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	var buf bytes.Buffer
	for _, dir := range dirs {
		buf.WriteString(fmt.Sprintf("%v\n", dir))
		for _, lib := range libraries[dir] {
			buf.WriteString(fmt.Sprintf("\t%v\n", filepath.Base(lib)))
		}
	}
	return buf.String()
}
